package emv

import (
	"crypto/sha1"
	"fmt"
	"log/slog"
	"time"
)

// GetCAPublicKey resolves the certificate-authority public key for rid
// (the 5-byte RID prefix of an AID) and index (the 1-byte CA PK index,
// tag 8F), both given as raw bytes.
func GetCAPublicKey(table CAKeyTable, rid []byte, index []byte) (RSAPublicKey, error) {
	byIndex, ok := table[hexUpper(rid)]
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: no CA key table entry for RID %s", hexUpper(rid))
	}
	key, ok := byIndex[hexUpper(index)]
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: no CA key for RID %s index %s", hexUpper(rid), hexUpper(index))
	}
	return key, nil
}

// GetIssuerPublicKey recovers the Issuer Public Key from tag 90 (the
// Issuer PK Certificate) under the scheme's CA key, per EMV Book 2 §6.3.
// It validates the certificate's format bytes, its SHA-1 checksum over the
// recovered data plus the tag 92 remainder and tag 9F32 exponent, and that
// the certificate's IIN is a prefix of the account's PAN (tag 5A). An
// expired certificate is logged as a warning, not an error.
func (sess *Session) GetIssuerPublicKey(app Application) (RSAPublicKey, error) {
	cert, ok := sess.store.get("90")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 90 (issuer PK certificate) missing")
	}
	remainder, _ := sess.store.get("92") // may legitimately be absent/empty
	exponent, ok := sess.store.get("9F32")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 9F32 (issuer PK exponent) missing")
	}
	caIndex, ok := sess.store.get("8F")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 8F (CA PK index) missing")
	}
	pan, ok := sess.store.get("5A")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 5A (PAN) missing")
	}

	rid := app.AID[:5]
	caKey, err := GetCAPublicKey(sess.caKeys, rid, caIndex)
	if err != nil {
		return RSAPublicKey{}, err
	}

	plain, err := caKey.PublicDecrypt(cert)
	if err != nil {
		return RSAPublicKey{}, &CertificateError{Stage: "issuer", Reason: err.Error()}
	}
	if plain[1] != 0x02 {
		return RSAPublicKey{}, &CertificateError{Stage: "issuer", Reason: fmt.Sprintf("certificate type byte 0x%02X != 0x02", plain[1])}
	}

	n := len(plain)
	checksumPos := 15 + n - 36
	iin := plain[2:6]
	expiry := plain[6:8]
	hashAlgo := plain[11]
	pkAlgo := plain[12]
	leftmostDigits := plain[15:checksumPos]
	storedChecksum := plain[checksumPos : checksumPos+20]

	if hashAlgo != 0x01 {
		return RSAPublicKey{}, &CertificateError{Stage: "issuer", Reason: fmt.Sprintf("unsupported hash algorithm 0x%02X", hashAlgo)}
	}
	if pkAlgo != 0x01 {
		return RSAPublicKey{}, &CertificateError{Stage: "issuer", Reason: fmt.Sprintf("unsupported PK algorithm 0x%02X", pkAlgo)}
	}

	checksumInput := append([]byte{}, plain[1:checksumPos]...)
	checksumInput = append(checksumInput, remainder...)
	checksumInput = append(checksumInput, exponent...)
	digest := sha1.Sum(checksumInput)
	if !bytesEqual(digest[:], storedChecksum) {
		return RSAPublicKey{}, &CertificateError{Stage: "issuer", Reason: "SHA-1 checksum mismatch"}
	}

	asciiPAN, err := BCDToASCII(pan)
	if err != nil {
		return RSAPublicKey{}, fmt.Errorf("cert: decoding PAN: %w", err)
	}
	asciiIIN, err := BCDToASCII(iin)
	if err != nil {
		return RSAPublicKey{}, fmt.Errorf("cert: decoding IIN: %w", err)
	}
	if len(asciiIIN) > len(asciiPAN) || string(asciiIIN) != string(asciiPAN[:len(asciiIIN)]) {
		return RSAPublicKey{}, &CertificateError{Stage: "issuer", Reason: fmt.Sprintf("IIN %s is not a prefix of PAN %s", asciiIIN, asciiPAN)}
	}

	if expired(expiry) {
		slog.Warn("issuer certificate expiry is more than 30 days in the past", "expiry_mmyy", hexUpper(expiry))
	}

	modulus := append([]byte{}, leftmostDigits...)
	modulus = append(modulus, remainder...)

	return RSAPublicKey{N: modulus, E: exponent}, nil
}

// GetICCPublicKey recovers the ICC Public Key from tag 9F46 under the
// issuer public key, per EMV Book 2 §6.4. dataAuthentication is the buffer
// assembled while reading AFL records (see Session.GetProcessingOptions);
// the Static Data Authentication Tag List (tag 9F4A) contributes the rest of
// the checksum input.
func (sess *Session) GetICCPublicKey(issuerPK RSAPublicKey, dataAuthentication []byte) (RSAPublicKey, error) {
	cert, ok := sess.store.get("9F46")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 9F46 (ICC PK certificate) missing")
	}
	exponent, ok := sess.store.get("9F47")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 9F47 (ICC PK exponent) missing")
	}
	remainder, hasRemainder := sess.store.get("9F48")
	pan, ok := sess.store.get("5A")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 5A (PAN) missing")
	}
	sdaTagList, ok := sess.store.get("9F4A")
	if !ok {
		return RSAPublicKey{}, fmt.Errorf("cert: tag 9F4A (static data authentication tag list) missing")
	}

	plain, err := issuerPK.PublicDecrypt(cert)
	if err != nil {
		return RSAPublicKey{}, &CertificateError{Stage: "icc", Reason: err.Error()}
	}
	if plain[1] != 0x04 {
		return RSAPublicKey{}, &CertificateError{Stage: "icc", Reason: fmt.Sprintf("certificate type byte 0x%02X != 0x04", plain[1])}
	}

	n := len(plain)
	checksumPos := 21 + n - 42
	certPAN := plain[2:12]
	expiry := plain[12:14]
	hashAlgo := plain[17]
	pkAlgo := plain[18]
	leftmostDigits := plain[21:checksumPos]
	storedChecksum := plain[checksumPos : checksumPos+20]

	if hashAlgo != 0x01 {
		return RSAPublicKey{}, &CertificateError{Stage: "icc", Reason: fmt.Sprintf("unsupported hash algorithm 0x%02X", hashAlgo)}
	}
	if pkAlgo != 0x01 {
		return RSAPublicKey{}, &CertificateError{Stage: "icc", Reason: fmt.Sprintf("unsupported PK algorithm 0x%02X", pkAlgo)}
	}

	sdaValues, err := sess.store.ExpandTagList(sdaTagList)
	if err != nil {
		return RSAPublicKey{}, fmt.Errorf("cert: expanding static data authentication tag list: %w", err)
	}

	checksumInput := append([]byte{}, plain[1:checksumPos]...)
	if hasRemainder {
		checksumInput = append(checksumInput, remainder...)
	}
	checksumInput = append(checksumInput, exponent...)
	checksumInput = append(checksumInput, dataAuthentication...)
	checksumInput = append(checksumInput, sdaValues...)

	digest := sha1.Sum(checksumInput)
	if !bytesEqual(digest[:], storedChecksum) {
		return RSAPublicKey{}, &CertificateError{Stage: "icc", Reason: "SHA-1 checksum mismatch"}
	}

	asciiPAN, err := BCDToASCII(pan)
	if err != nil {
		return RSAPublicKey{}, fmt.Errorf("cert: decoding PAN: %w", err)
	}
	asciiCertPAN, err := BCDToASCII(certPAN)
	if err != nil {
		return RSAPublicKey{}, fmt.Errorf("cert: decoding certificate PAN: %w", err)
	}
	if string(asciiCertPAN) != string(asciiPAN) {
		return RSAPublicKey{}, &CertificateError{Stage: "icc", Reason: fmt.Sprintf("PAN mismatch: certificate %s, card %s", asciiCertPAN, asciiPAN)}
	}

	if expired(expiry) {
		slog.Warn("ICC certificate expiry is more than 30 days in the past", "expiry_mmyy", hexUpper(expiry))
	}

	trimmed := trimTrailingBB(leftmostDigits)
	modulus := append([]byte{}, trimmed...)
	if hasRemainder {
		modulus = append(modulus, remainder...)
	}

	return RSAPublicKey{N: modulus, E: exponent}, nil
}

// expired parses a 2-byte BCD MMYY expiry as day 01 of that month/year and
// reports whether today is more than 30 days past it.
func expired(mmyy []byte) bool {
	month, year := int(bcdByteToInt(mmyy[0])), int(bcdByteToInt(mmyy[1]))
	expiry := time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return time.Since(expiry) > 30*24*time.Hour
}

func bcdByteToInt(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

func trimTrailingBB(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0xBB {
		end--
	}
	return b[:end]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
