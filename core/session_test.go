package emv

import (
	"bytes"
	"testing"
)

// scriptedTransport replies to each APDU in turn, ignoring its bytes beyond
// matching sequence order. Real card dialogs are strictly sequential, so a
// plain queue is enough to fake one.
func scriptedTransport(responses [][]byte) Transport {
	i := 0
	return func(apdu []byte) ([]byte, error) {
		if i >= len(responses) {
			return nil, errUnexpectedCall
		}
		r := responses[i]
		i++
		return r, nil
	}
}

var errUnexpectedCall = &StatusError{Cmd: 0, SW: 0}

func TestSelectPaymentSystemEnvironment(t *testing.T) {
	// SELECT PSE response carries tag 88 (SFI) inside its FCI template.
	selectResp := []byte{
		0x6F, 0x03,
		0x88, 0x01, 0x01,
	}
	selectResp = append(selectResp, 0x90, 0x00)

	record := []byte{
		0x70, 0x0E,
		0x61, 0x0C,
		0x4F, 0x07, 0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10,
		0x87, 0x01, 0x01,
	}
	record = append(record, 0x90, 0x00)

	notFound := []byte{0x6A, 0x83}

	sess := NewSession(scriptedTransport([][]byte{
		selectResp,
		record,
		notFound,
	}), Settings{}, nil, nil)

	apps, err := sess.SelectPaymentSystemEnvironment()
	if err != nil {
		t.Fatalf("SelectPaymentSystemEnvironment returned error: %v", err)
	}
	if len(apps) != 1 {
		t.Fatalf("got %d applications, want 1", len(apps))
	}
	if !bytes.Equal(apps[0].AID, []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10}) {
		t.Fatalf("got AID % X", apps[0].AID)
	}
	if apps[0].Priority != 0x01 {
		t.Fatalf("got priority 0x%02X, want 0x01", apps[0].Priority)
	}
}

func TestSelectApplication(t *testing.T) {
	resp := append([]byte{0x6F, 0x02, 0x84, 0x00}, 0x90, 0x00)
	sess := NewSession(scriptedTransport([][]byte{resp}), Settings{}, nil, nil)

	err := sess.SelectApplication(Application{AID: []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10}})
	if err != nil {
		t.Fatalf("SelectApplication returned error: %v", err)
	}
}

func TestSelectApplicationFailure(t *testing.T) {
	resp := []byte{0x6A, 0x82}
	sess := NewSession(scriptedTransport([][]byte{resp}), Settings{}, nil, nil)

	err := sess.SelectApplication(Application{AID: []byte{0xA0}})
	if err == nil {
		t.Fatalf("expected error for file-not-found status")
	}
}

func TestGetProcessingOptionsTemplate80DecodesAIPAndUsage(t *testing.T) {
	// Template 80 response: AIP byte 1 = 0x60 (SDA + DDA, no CVM support), AFL names one record.
	gpoResp := append([]byte{0x80, 0x06, 0x60, 0x00}, []byte{0x08, 0x01, 0x01, 0x00}...)
	gpoResp = append(gpoResp, 0x90, 0x00)

	record := append([]byte{
		0x70, 0x05,
		0x9F, 0x07, 0x02, 0xFF, 0x00,
	}, 0x90, 0x00)

	sess := NewSession(scriptedTransport([][]byte{gpoResp, record}), Settings{}, nil, nil)

	_, err := sess.GetProcessingOptions()
	if err != nil {
		t.Fatalf("GetProcessingOptions returned error: %v", err)
	}

	if !sess.icc.Capabilities.SDA || !sess.icc.Capabilities.DDA {
		t.Fatalf("expected SDA and DDA capability flags set, got %+v", sess.icc.Capabilities)
	}
	if !sess.icc.Usage.DomesticCash {
		t.Fatalf("expected domestic cash usage flag set, got %+v", sess.icc.Usage)
	}
}

func TestGetProcessingOptionsRejectsUnknownTemplate(t *testing.T) {
	resp := append([]byte{0x6A, 0x00}, 0x90, 0x00)
	sess := NewSession(scriptedTransport([][]byte{resp}), Settings{}, nil, nil)

	if _, err := sess.GetProcessingOptions(); err == nil {
		t.Fatalf("expected error for unrecognized GPO response template")
	}
}

func TestVerifyPlaintextPINWrongPINIsPINError(t *testing.T) {
	resp := []byte{0x63, 0xC4}
	sess := NewSession(scriptedTransport([][]byte{resp}), Settings{}, nil, nil)

	err := sess.VerifyPlaintextPIN([]byte("1234"))
	if err == nil {
		t.Fatalf("expected error for wrong PIN")
	}
	if !IsPINError(err) {
		t.Fatalf("expected IsPINError to recognize 63C4, got %v", err)
	}
}

func TestVerifyPlaintextPINSuccess(t *testing.T) {
	resp := []byte{0x90, 0x00}
	sess := NewSession(scriptedTransport([][]byte{resp}), Settings{}, nil, nil)

	if err := sess.VerifyPlaintextPIN([]byte("1234")); err != nil {
		t.Fatalf("VerifyPlaintextPIN returned error: %v", err)
	}
}

func TestGetChallengeReturnsUnpredictableNumber(t *testing.T) {
	resp := append([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}, 0x90, 0x00)
	sess := NewSession(scriptedTransport([][]byte{resp}), Settings{}, nil, nil)

	got, err := sess.GetChallenge()
	if err != nil {
		t.Fatalf("GetChallenge returned error: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("got %d bytes, want 8", len(got))
	}
}

func TestGetDataRejectsOutOfRangeTag(t *testing.T) {
	sess := NewSession(scriptedTransport(nil), Settings{}, nil, nil)
	if _, err := sess.GetData(0x5A02); err == nil {
		t.Fatalf("expected error for tag outside 9Fxx range")
	}
}

func TestGenerateACTemplate80ExtractsFields(t *testing.T) {
	sess := NewSession(nil, Settings{TVR: TVR{}}, nil, nil)
	sess.store.put("8C", []byte{0x9A, 0x03})
	sess.store.put("9A", []byte{0x26, 0x07, 0x30})

	resp := []byte{
		0x80, 0x0C,
		0x80, // cryptogram info data
		0x12, 0x34, // ATC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11, // cryptogram
		0x5A, // issuer application data (optional)
	}
	resp = append(resp, 0x90, 0x00)
	sess.transport = scriptedTransport([][]byte{resp})

	if err := sess.GenerateAC(); err != nil {
		t.Fatalf("GenerateAC returned error: %v", err)
	}
	cid, _ := sess.store.get("9F27")
	if len(cid) != 1 || cid[0] != 0x80 {
		t.Fatalf("got cryptogram info data % X", cid)
	}
	cryptogram, _ := sess.store.get("9F26")
	if len(cryptogram) != 8 {
		t.Fatalf("got cryptogram length %d, want 8", len(cryptogram))
	}
}

func TestDumpTagsWritesSortedOutput(t *testing.T) {
	sess := NewSession(nil, Settings{}, TagDictionary{"5A": "PAN"}, nil)
	sess.store.put("5A", []byte{0x12, 0x34})
	sess.store.put("9F02", []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00})

	var buf bytes.Buffer
	sess.DumpTags(&buf)
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("PAN")) {
		t.Fatalf("expected dictionary name PAN in output, got %q", out)
	}
	if i, j := bytes.Index([]byte(out), []byte("5A ")), bytes.Index([]byte(out), []byte("9F02 ")); i < 0 || j < 0 || i > j {
		t.Fatalf("expected tag 5A listed before 9F02, got %q", out)
	}
}
