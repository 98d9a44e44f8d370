package emv

import (
	"crypto/sha1"
	"fmt"
	"io"
	"sort"
)

// Session owns everything a single EMV contact transaction touches: the
// tag store, the card's capability/usage/CVM state, the APDU transport,
// and references to the read-only configuration it was built with. One
// Session drives exactly one transaction against exactly one card; nothing
// here is shared across concurrent transactions.
type Session struct {
	transport Transport
	store     *tagStore
	icc       ICC
	settings  Settings
	dict      TagDictionary
	caKeys    CAKeyTable
}

// NewSession builds a Session ready to begin a transaction. settings, dict
// and caKeys are read-only configuration supplied by the caller (see the
// config package) and may be shared across sessions.
func NewSession(transport Transport, settings Settings, dict TagDictionary, caKeys CAKeyTable) *Session {
	return &Session{
		transport: transport,
		store:     newTagStore(),
		icc:       ICC{},
		settings:  settings,
		dict:      dict,
		caKeys:    caKeys,
	}
}

// ICC returns the card capability, usage, and CVM state decoded so far
// (populated once GetProcessingOptions has completed).
func (sess *Session) ICC() ICC {
	return sess.icc
}

// send transmits one APDU and absorbs every primitive tag found in a
// well-formed TLV response into the tag store, the way every response in
// this protocol is treated regardless of which command produced it.
func (sess *Session) send(apdu []byte) (sw uint16, data []byte, err error) {
	sw, data, err = transmit(sess.transport, apdu)
	if err != nil {
		return 0, nil, err
	}
	if len(data) > 0 {
		sess.store.absorb(ParseTLVs(data))
	}
	return sw, data, nil
}

// checkedSend is send, but turns a non-success status word into a
// *StatusError so callers can treat every step uniformly unless they need
// to distinguish a specific status (PIN verification does, via IsPINError).
func (sess *Session) checkedSend(apdu []byte) ([]byte, error) {
	sw, data, err := sess.send(apdu)
	if err != nil {
		return nil, err
	}
	if !SwOK(sw) {
		return data, &StatusError{Cmd: apdu[1], SW: sw}
	}
	return data, nil
}

func (sess *Session) readRecord(sfi, index byte) ([]byte, uint16, error) {
	apdu := []byte{0x00, 0xB2, index, (sfi << 3) | 0x04, 0x00}
	sw, data, err := sess.send(apdu)
	return data, sw, err
}

// SelectPaymentSystemEnvironment selects the contact PSE directory
// (1PAY.SYS.DDF01), reads its directory records from the SFI given in
// tag 88, and returns every application that carries a priority (tag 87);
// applications without one are skipped per EMV Book 1.
func (sess *Session) SelectPaymentSystemEnvironment() ([]Application, error) {
	sess.store.clear()

	const pseName = "1PAY.SYS.DDF01"
	apdu := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(pseName))}, []byte(pseName)...)
	if _, err := sess.checkedSend(apdu); err != nil {
		return nil, fmt.Errorf("select PSE: %w", err)
	}

	sfiBytes, ok := sess.store.get("88")
	if !ok || len(sfiBytes) != 1 {
		return nil, fmt.Errorf("select PSE: tag 88 (SFI) missing or malformed")
	}
	sfi := sfiBytes[0]

	var apps []Application
	for index := 1; index <= 0xFF; index++ {
		data, sw, err := sess.readRecord(sfi, byte(index))
		if err != nil {
			return nil, fmt.Errorf("select PSE: reading directory record %d: %w", index, err)
		}
		if !SwOK(sw) {
			break
		}
		if len(data) == 0 || data[0] != 0x70 {
			return nil, fmt.Errorf("select PSE: expected template 70 in directory record %d", index)
		}

		nodes := ParseTLVs(data)
		if len(nodes) != 1 {
			return nil, fmt.Errorf("select PSE: malformed directory record %d", index)
		}
		for _, tmpl61 := range nodes[0].Children {
			var aid, label, priority []byte
			for _, child := range tmpl61.Children {
				switch child.TagHex() {
				case "4F":
					aid = child.Value
				case "50":
					label = child.Value
				case "87":
					priority = child.Value
				}
			}
			if priority == nil {
				continue
			}
			apps = append(apps, Application{AID: aid, Label: label, Priority: priority[0]})
		}
	}

	if len(apps) == 0 {
		return nil, fmt.Errorf("select PSE: no application records found")
	}
	return apps, nil
}

// SelectApplication selects app's AID, clearing the tag store first.
func (sess *Session) SelectApplication(app Application) error {
	apdu := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(app.AID))}, app.AID...)
	sess.store.clear()
	if _, err := sess.checkedSend(apdu); err != nil {
		return fmt.Errorf("select application %s: %w", hexUpper(app.AID), err)
	}
	return nil
}

// GetProcessingOptions issues GET PROCESSING OPTIONS, reads every record
// named by the returned Application File Locator in AFL order, and decodes
// the Application Interchange Profile, Application Usage Control, and CVM
// List into sess.ICC(). It returns the data-authentication input buffer
// built while walking the AFL (EMV Book 3 §10.3), which certificate and
// signature verification over the card's data consume later.
//
// A record group's authentication-record counter is only decremented on a
// successful record read; if an early record in a group fails, later
// records that were meant to be hashed may not be, exactly as the policy
// this kernel was ported from behaves. An AFL group's records are still
// read in order regardless, because that order is what defines the bytes
// fed to SHA-1 later.
func (sess *Session) GetProcessingOptions() ([]byte, error) {
	apdu := []byte{0x80, 0xA8, 0x00, 0x00, 0x02, 0x83, 0x00}
	data, err := sess.checkedSend(apdu)
	if err != nil {
		return nil, fmt.Errorf("get processing options: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("get processing options: empty response")
	}

	switch data[0] {
	case 0x80:
		if len(data) < 4 {
			return nil, fmt.Errorf("get processing options: template 80 response too short")
		}
		sess.store.put("82", data[2:4])
		sess.store.put("94", data[4:])
	case 0x77:
		// Already absorbed into the tag store by checkedSend.
	default:
		return nil, fmt.Errorf("get processing options: unrecognized response template 0x%02X", data[0])
	}

	afl, ok := sess.store.get("94")
	if !ok {
		return nil, fmt.Errorf("get processing options: tag 94 (AFL) missing")
	}
	if len(afl)%4 != 0 {
		return nil, fmt.Errorf("get processing options: AFL length %d is not a multiple of 4", len(afl))
	}

	var dataAuthentication []byte
	for i := 0; i < len(afl); i += 4 {
		sfi := afl[i] >> 3
		first, last := afl[i+1], afl[i+2]
		recordsForAuth := afl[i+3]

		for index := int(first); index <= int(last); index++ {
			recData, sw, err := sess.readRecord(sfi, byte(index))
			if err != nil {
				return nil, fmt.Errorf("get processing options: reading AFL record %d: %w", index, err)
			}
			if !SwOK(sw) {
				continue
			}
			if len(recData) == 0 || recData[0] != 0x70 {
				return nil, fmt.Errorf("get processing options: expected template 70 in AFL record %d", index)
			}

			if recordsForAuth == 0 {
				continue
			}
			recordsForAuth--

			if sfi <= 10 {
				nodes := ParseTLVs(recData)
				if len(nodes) != 1 {
					return nil, fmt.Errorf("get processing options: malformed AFL record %d", index)
				}
				for _, child := range nodes[0].Children {
					dataAuthentication = append(dataAuthentication, child.Bytes()...)
				}
			} else {
				dataAuthentication = append(dataAuthentication, recData...)
			}
		}
	}

	if err := sess.decodeICCState(); err != nil {
		return nil, fmt.Errorf("get processing options: %w", err)
	}

	return dataAuthentication, nil
}

func getBit(b byte, bit uint) bool {
	return b&(1<<bit) != 0
}

// decodeICCState decodes tag 82 (AIP), tag 9F07 (usage control), and if the
// AIP indicates cardholder verification is supported, tag 8E (CVM List)
// into sess.icc.
func (sess *Session) decodeICCState() error {
	aip, ok := sess.store.get("82")
	if !ok || len(aip) < 1 {
		return fmt.Errorf("tag 82 (AIP) missing")
	}
	b1 := aip[0]
	sess.icc.Capabilities.SDA = getBit(b1, 6)
	sess.icc.Capabilities.DDA = getBit(b1, 5)
	cvmSupported := getBit(b1, 4)
	sess.icc.Capabilities.CardholderVerification = cvmSupported
	sess.icc.Capabilities.TerminalRiskManagement = getBit(b1, 3)
	sess.icc.Capabilities.IssuerAuthentication = getBit(b1, 2)
	sess.icc.Capabilities.CDA = getBit(b1, 0)

	if cvmSupported {
		if err := sess.decodeCVMList(); err != nil {
			return err
		}
	}

	usage, ok := sess.store.get("9F07")
	if !ok || len(usage) < 2 {
		return fmt.Errorf("tag 9F07 (application usage control) missing")
	}
	u1, u2 := usage[0], usage[1]
	sess.icc.Usage.DomesticCash = getBit(u1, 7)
	sess.icc.Usage.InternationalCash = getBit(u1, 6)
	sess.icc.Usage.DomesticGoods = getBit(u1, 5)
	sess.icc.Usage.InternationalGoods = getBit(u1, 4)
	sess.icc.Usage.DomesticServices = getBit(u1, 3)
	sess.icc.Usage.InternationalServices = getBit(u1, 2)
	sess.icc.Usage.ATMs = getBit(u1, 1)
	sess.icc.Usage.TerminalsOtherThanATMs = getBit(u1, 0)
	sess.icc.Usage.DomesticCashback = getBit(u2, 7)
	sess.icc.Usage.InternationalCashback = getBit(u2, 6)

	return nil
}

func (sess *Session) decodeCVMList() error {
	cvmList, ok := sess.store.get("8E")
	if !ok {
		return fmt.Errorf("tag 8E (CVM list) missing though AIP indicates CVM support")
	}
	if len(cvmList) < 8 || (len(cvmList)-8)%2 != 0 {
		return fmt.Errorf("tag 8E (CVM list) malformed")
	}

	xAscii, err := BCDToASCII(cvmList[0:4])
	if err != nil {
		return fmt.Errorf("CVM list amount X: %w", err)
	}
	yAscii, err := BCDToASCII(cvmList[4:8])
	if err != nil {
		return fmt.Errorf("CVM list amount Y: %w", err)
	}
	x, err := parseUint32(xAscii)
	if err != nil {
		return fmt.Errorf("CVM list amount X: %w", err)
	}
	y, err := parseUint32(yAscii)
	if err != nil {
		return fmt.Errorf("CVM list amount Y: %w", err)
	}

	rules := cvmList[8:]
	for i := 0; i < len(rules); i += 2 {
		codeByte, condByte := rules[i], rules[i+1]
		// Bit 7 is RFU and is discarded; bit 6 inverted is fail_if_unsuccessful.
		failIfUnsuccessful := !getBit(codeByte, 6)
		method := CVMMethod(codeByte & 0x3F)

		sess.icc.CVMRules = append(sess.icc.CVMRules, CVMRule{
			AmountX:            x,
			AmountY:            y,
			FailIfUnsuccessful: failIfUnsuccessful,
			Method:             method,
			Condition:          CVMCondition(condByte),
		})
	}
	return nil
}

func parseUint32(ascii []byte) (uint32, error) {
	var v uint32
	for _, c := range ascii {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit byte 0x%02X", c)
		}
		v = v*10 + uint32(c-'0')
	}
	return v, nil
}

// VerifyPlaintextPIN sends ascii PIN digits as a plaintext VERIFY command.
// A wrong PIN surfaces as a *StatusError for which IsPINError is true —
// the caller may retry with a different PIN. Any other failure ends the
// session.
func (sess *Session) VerifyPlaintextPIN(asciiPIN []byte) error {
	pinBCD, err := AsciiToBCDCN(asciiPIN, 6)
	if err != nil {
		return fmt.Errorf("verify plaintext PIN: %w", err)
	}

	apdu := []byte{0x00, 0x20, 0x00, 0x80, 0x08, 0x20 | byte(len(asciiPIN))}
	apdu = append(apdu, pinBCD...)
	apdu = append(apdu, 0xFF)

	if _, err := sess.checkedSend(apdu); err != nil {
		return fmt.Errorf("verify plaintext PIN: %w", err)
	}
	return nil
}

// GetChallenge issues GET CHALLENGE and returns the 8-byte ICC
// unpredictable number.
func (sess *Session) GetChallenge() ([]byte, error) {
	apdu := []byte{0x00, 0x84, 0x00, 0x00, 0x00}
	data, err := sess.checkedSend(apdu)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return data, nil
}

// VerifyEncipheredPIN enciphers ascii PIN digits under the ICC's PIN public
// key (with a GET CHALLENGE-sourced unpredictable number and padding that
// is random when the settings allow randomness and zero bytes otherwise) and sends the result as an enciphered VERIFY command. As with
// VerifyPlaintextPIN, IsPINError distinguishes a wrong PIN from every other
// failure.
func (sess *Session) VerifyEncipheredPIN(asciiPIN []byte, iccPINPK RSAPublicKey) error {
	pinBCD, err := AsciiToBCDCN(asciiPIN, 6)
	if err != nil {
		return fmt.Errorf("verify enciphered PIN: %w", err)
	}

	iccUN, err := sess.GetChallenge()
	if err != nil {
		return fmt.Errorf("verify enciphered PIN: %w", err)
	}
	if len(iccUN) != 8 {
		return fmt.Errorf("verify enciphered PIN: ICC unpredictable number length %d != 8", len(iccUN))
	}

	plainLen := iccPINPK.size()
	if plainLen < 17 {
		return fmt.Errorf("verify enciphered PIN: ICC PIN key too small (%d bytes)", plainLen)
	}

	plaintext := make([]byte, 0, plainLen)
	plaintext = append(plaintext, 0x7F)
	plaintext = append(plaintext, 0x20|byte(len(asciiPIN)))
	plaintext = append(plaintext, pinBCD...)
	plaintext = append(plaintext, 0xFF)
	plaintext = append(plaintext, iccUN...)

	padding := make([]byte, plainLen-len(plaintext))
	if err := sess.settings.fillOptionalPadding(padding); err != nil {
		return fmt.Errorf("verify enciphered PIN: generating padding: %w", err)
	}
	plaintext = append(plaintext, padding...)

	ciphertext, err := iccPINPK.PublicEncrypt(plaintext)
	if err != nil {
		return fmt.Errorf("verify enciphered PIN: %w", err)
	}

	apdu := []byte{0x00, 0x20, 0x00, 0x88, byte(len(ciphertext))}
	apdu = append(apdu, ciphertext...)

	if _, err := sess.checkedSend(apdu); err != nil {
		return fmt.Errorf("verify enciphered PIN: %w", err)
	}
	return nil
}

// GetData fetches a single tag (9F36, 9F13, 9F17, or 9F4F) outside the main
// transaction flow via the GET DATA command.
func (sess *Session) GetData(tag uint16) ([]byte, error) {
	hi, lo := byte(tag>>8), byte(tag)
	if hi != 0x9F {
		return nil, fmt.Errorf("get data: tag %04X is not in the 9Fxx range", tag)
	}
	apdu := []byte{0x80, 0xCA, hi, lo, 0x05}
	data, err := sess.checkedSend(apdu)
	if err != nil {
		return nil, fmt.Errorf("get data: %w", err)
	}
	return data, nil
}

// DynamicDataAuthentication performs offline DDA: it expands the Dynamic
// Data Authentication Data Object List (tag 9F49, falling back to just the
// unpredictable number when absent), issues INTERNAL AUTHENTICATE, and
// validates the Signed Dynamic Application Data (tag 9F4B) under the ICC
// public key. The ICC Dynamic Number it recovers is stored as tag 9F4C.
func (sess *Session) DynamicDataAuthentication(iccPK RSAPublicKey) error {
	ddol, ok := sess.store.get("9F49")
	if !ok {
		ddol = []byte{0x9F, 0x37, 0x04}
	}
	authData, err := sess.store.ExpandTagList(ddol)
	if err != nil {
		return fmt.Errorf("dynamic data authentication: expanding DDOL: %w", err)
	}

	apdu := []byte{0x00, 0x88, 0x00, 0x00, byte(len(authData))}
	apdu = append(apdu, authData...)
	apdu = append(apdu, 0x00)

	data, err := sess.checkedSend(apdu)
	if err != nil {
		return fmt.Errorf("dynamic data authentication: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("dynamic data authentication: empty response")
	}

	switch data[0] {
	case 0x80:
		if len(data) < 3 {
			return fmt.Errorf("dynamic data authentication: template 80 response too short")
		}
		sess.store.put("9F4B", data[3:])
	case 0x77:
		// Already absorbed.
	default:
		return fmt.Errorf("dynamic data authentication: unrecognized response template 0x%02X", data[0])
	}

	signed, ok := sess.store.get("9F4B")
	if !ok {
		return fmt.Errorf("dynamic data authentication: tag 9F4B (signed dynamic application data) missing")
	}

	plain, err := iccPK.PublicDecrypt(signed)
	if err != nil {
		return fmt.Errorf("dynamic data authentication: %w", err)
	}
	if plain[1] != 0x05 {
		return fmt.Errorf("dynamic data authentication: format byte 0x%02X != 0x05", plain[1])
	}
	if plain[2] != 0x01 {
		return fmt.Errorf("dynamic data authentication: unsupported hash algorithm 0x%02X", plain[2])
	}

	dynLen := int(plain[3])
	if 4+dynLen > len(plain) || dynLen < 1 {
		return fmt.Errorf("dynamic data authentication: dynamic data length %d out of range", dynLen)
	}
	dynData := plain[4 : 4+dynLen]
	sess.store.put("9F4C", dynData[1:])

	checksumPos := len(plain) - 21
	checksumInput := append([]byte{}, plain[1:checksumPos]...)
	checksumInput = append(checksumInput, authData...)
	digest := sha1.Sum(checksumInput)
	storedChecksum := plain[checksumPos : checksumPos+20]
	if !bytesEqual(digest[:], storedChecksum) {
		return &CertificateError{Stage: "dda", Reason: "SHA-1 checksum mismatch"}
	}

	return nil
}

// GenerateAC builds the terminal's TVR (tag 95), expands the Card Risk
// Management Data Object List (tag 8C), and requests a cryptogram via
// GENERATE AC. P1 is always 0x40 (TC / proceed offline) in this kernel —
// AAC/ARQC variants are not implemented.
func (sess *Session) GenerateAC() error {
	sess.store.put("95", sess.settings.TVR.Bytes())

	cdol, ok := sess.store.get("8C")
	if !ok {
		return fmt.Errorf("generate ac: tag 8C (CDOL) missing")
	}
	cdolData, err := sess.store.ExpandTagList(cdol)
	if err != nil {
		return fmt.Errorf("generate ac: %w", err)
	}
	if len(cdolData) > 0xFF {
		return fmt.Errorf("generate ac: CDOL data length %d exceeds 255 bytes", len(cdolData))
	}

	const p1ProceedOffline = 0x40
	apdu := []byte{0x80, 0xAE, p1ProceedOffline, 0x00, byte(len(cdolData))}
	apdu = append(apdu, cdolData...)
	apdu = append(apdu, 0x00)

	data, err := sess.checkedSend(apdu)
	if err != nil {
		return fmt.Errorf("generate ac: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("generate ac: empty response")
	}

	switch data[0] {
	case 0x80:
		if len(data) < 13 {
			return fmt.Errorf("generate ac: template 80 response too short")
		}
		sess.store.put("9F27", data[2:3])
		sess.store.put("9F36", data[3:5])
		sess.store.put("9F26", data[5:13])
		if len(data) > 13 {
			sess.store.put("9F10", data[13:])
		}
	case 0x77:
		// Already absorbed.
	default:
		return fmt.Errorf("generate ac: unrecognized response template 0x%02X", data[0])
	}

	return nil
}

// ApplyDefaults installs the terminal's configured default tags, then the
// transaction date (9A) and unpredictable number (9F37) if still absent.
// Call this once after selecting the application and before
// GetProcessingOptions.
func (sess *Session) ApplyDefaults() error {
	return sess.applyDefaults()
}

// DumpTags writes every tag currently held in the session's tag store, one
// per line, sorted by tag identifier, with its dictionary name (if any) and
// a printable-ASCII rendering alongside the hex value. It exists purely for
// diagnostics; the protocol engine never reads it back.
func (sess *Session) DumpTags(w io.Writer) {
	tags := make([]string, 0, len(sess.store.tags))
	for tag := range sess.store.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		value := sess.store.tags[tag]
		name := sess.dict[tag]
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(w, "%-8s %-40s %-48s %q\n", tag, name, hexUpper(value), printableASCII(value))
	}
}

func printableASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 0x20 && c < 0x7F {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
