package emv

import (
	"errors"
	"fmt"
)

// StatusError represents a non-success status word returned by the card
// for a given command byte.
type StatusError struct {
	Cmd byte   // command INS byte
	SW  uint16 // status word
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("card command 0x%02X failed with SW=0x%04X (%s)", e.Cmd, e.SW, swDescription(e.SW))
}

func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWPINIncorrect:
		return "PIN incorrect"
	case SWWrongLength:
		return "wrong length"
	case SWFileNotFound:
		return "file not found"
	case SWRecordNotFound:
		return "record not found"
	case SWConditionsNotSatisfied:
		return "conditions of use not satisfied"
	default:
		if sw&0xFF00 == 0x6100 {
			return fmt.Sprintf("%d bytes available via GET RESPONSE", sw&0xFF)
		}
		if sw&0xFF00 == 0x6C00 {
			return fmt.Sprintf("wrong Le (correct Le=%d)", sw&0xFF)
		}
		return "unknown error"
	}
}

// IsPINError reports whether err is the card's "PIN incorrect" status (63 C4).
// Unlike every other StatusError, this one is recoverable: the caller may
// retry with a different PIN.
func IsPINError(err error) bool {
	var swErr *StatusError
	return errors.As(err, &swErr) && swErr.SW == SWPINIncorrect
}

// IsCertificateError reports whether err originated from certificate chain
// verification (format mismatch, hash mismatch, or PAN/IIN linkage failure).
func IsCertificateError(err error) bool {
	_, ok := err.(*CertificateError)
	return ok
}

// CertificateError is returned by GetIssuerPublicKey/GetICCPublicKey when the
// recovered certificate itself is rejected: wrong header/trailer/type byte,
// unsupported hash or PK algorithm, SHA-1 hash mismatch, or PAN/IIN mismatch.
// DynamicDataAuthentication also returns one (Stage "dda") for a SHA-1
// mismatch over the signed dynamic data. Missing tags, an unknown CA key, a
// failed tag-list expansion and BCD decoding failures are returned as other
// errors. Certificate expiry is NOT one of these — an expired certificate
// only logs a warning.
type CertificateError struct {
	Stage  string // "issuer", "icc" or "dda"
	Reason string
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("%s certificate: %s", e.Stage, e.Reason)
}

// TagListError is returned by ExpandTagList when a listed tag is missing
// from the store or its stored length disagrees with the list's stated
// length.
type TagListError struct {
	Tag    string
	Reason string
}

func (e *TagListError) Error() string {
	return fmt.Sprintf("tag list expansion for %s: %s", e.Tag, e.Reason)
}

// SWSuccess and friends are the status words this kernel inspects directly;
// anything else just compares unequal to SWSuccess.
const (
	SWSuccess                = 0x9000
	SWPINIncorrect           = 0x63C4
	SWWrongLength            = 0x6700
	SWFileNotFound           = 0x6A82
	SWRecordNotFound         = 0x6A83
	SWConditionsNotSatisfied = 0x6985
)

// SwOK reports whether sw is the ISO 7816 success trailer.
func SwOK(sw uint16) bool {
	return sw == SWSuccess
}
