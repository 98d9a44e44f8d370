package emv

// TVR is the Terminal Verification Results, tag 95 — five bytes of
// independent named boolean flags per EMV Book 3 Annex C5. It is encoded
// by OR-ing bit positions; this kernel never decodes a TVR value back out
// of a byte string.
type TVR struct {
	// Byte 1
	OfflineDataAuthenticationNotPerformed bool
	SDAFailed                             bool
	ICCDataMissing                        bool
	CardOnExceptionFile                   bool
	DDAFailed                             bool
	CDAFailed                             bool

	// Byte 2
	DifferentApplicationVersions   bool
	ExpiredApplication              bool
	ApplicationNotYetEffective      bool
	ServiceNotAllowedForCardProduct bool
	NewCard                          bool

	// Byte 3
	CardholderVerificationNotSuccessful                  bool
	UnrecognisedCVM                                      bool
	PINTryLimitExceeded                                  bool
	PINEntryRequiredButPadNotPresentOrNotWorking         bool
	PINEntryRequiredPadPresentButPINNotEntered           bool
	OnlinePINEntered                                     bool

	// Byte 4
	TransactionExceedsFloorLimit               bool
	LowerConsecutiveOfflineLimitExceeded       bool
	UpperConsecutiveOfflineLimitExceeded       bool
	TransactionSelectedRandomlyForOnline       bool
	MerchantForcedTransactionOnline            bool

	// Byte 5
	DefaultTDOLUsed                               bool
	IssuerAuthenticationFailed                    bool
	ScriptProcessingFailedBeforeFinalGenerateAC   bool
	ScriptProcessingFailedAfterFinalGenerateAC    bool
}

func setBit(b *byte, bit uint, v bool) {
	if v {
		*b |= 1 << bit
	}
}

// Bytes encodes the TVR into its 5-byte tag 95 representation. Undefined
// (RFU) bits are always zero.
func (t TVR) Bytes() []byte {
	var b1, b2, b3, b4, b5 byte

	setBit(&b1, 7, t.OfflineDataAuthenticationNotPerformed)
	setBit(&b1, 6, t.SDAFailed)
	setBit(&b1, 5, t.ICCDataMissing)
	setBit(&b1, 4, t.CardOnExceptionFile)
	setBit(&b1, 3, t.DDAFailed)
	setBit(&b1, 2, t.CDAFailed)

	setBit(&b2, 7, t.DifferentApplicationVersions)
	setBit(&b2, 6, t.ExpiredApplication)
	setBit(&b2, 5, t.ApplicationNotYetEffective)
	setBit(&b2, 4, t.ServiceNotAllowedForCardProduct)
	setBit(&b2, 3, t.NewCard)

	setBit(&b3, 7, t.CardholderVerificationNotSuccessful)
	setBit(&b3, 6, t.UnrecognisedCVM)
	setBit(&b3, 5, t.PINTryLimitExceeded)
	setBit(&b3, 4, t.PINEntryRequiredButPadNotPresentOrNotWorking)
	setBit(&b3, 3, t.PINEntryRequiredPadPresentButPINNotEntered)
	setBit(&b3, 2, t.OnlinePINEntered)

	setBit(&b4, 7, t.TransactionExceedsFloorLimit)
	setBit(&b4, 6, t.LowerConsecutiveOfflineLimitExceeded)
	setBit(&b4, 5, t.UpperConsecutiveOfflineLimitExceeded)
	setBit(&b4, 4, t.TransactionSelectedRandomlyForOnline)
	setBit(&b4, 3, t.MerchantForcedTransactionOnline)

	setBit(&b5, 7, t.DefaultTDOLUsed)
	setBit(&b5, 6, t.IssuerAuthenticationFailed)
	setBit(&b5, 5, t.ScriptProcessingFailedBeforeFinalGenerateAC)
	setBit(&b5, 4, t.ScriptProcessingFailedAfterFinalGenerateAC)

	return []byte{b1, b2, b3, b4, b5}
}

// CVMMethod is the method code carried in bits 0-5 of a CVM rule's code
// byte (bit 6 is the fail-if-unsuccessful flag, bit 7 is RFU and discarded
// on parse).
type CVMMethod byte

const (
	CVMFailProcessing               CVMMethod = 0x00
	CVMPlaintextPIN                  CVMMethod = 0x01
	CVMEncipheredPINOnline           CVMMethod = 0x02
	CVMPlaintextPINAndSignature      CVMMethod = 0x03
	CVMEncipheredPINOffline          CVMMethod = 0x04
	CVMEncipheredPINOfflineAndSignature CVMMethod = 0x05
	CVMSignature                     CVMMethod = 0x1E
	CVMNoCVM                          CVMMethod = 0x1F
)

// CVMCondition is the condition code carried in the second byte of a CVM
// rule pair (tag 8E).
type CVMCondition byte

const (
	CVMConditionAlways                     CVMCondition = 0x00
	CVMConditionUnattendedCash              CVMCondition = 0x01
	CVMConditionNotCashNorPurchaseCashback   CVMCondition = 0x02
	CVMConditionCVMSupported                 CVMCondition = 0x03
	CVMConditionManualCash                   CVMCondition = 0x04
	CVMConditionPurchaseWithCashback         CVMCondition = 0x05
	CVMConditionICCCurrencyUnderX            CVMCondition = 0x06
	CVMConditionICCCurrencyOverX             CVMCondition = 0x07
	CVMConditionICCCurrencyUnderY            CVMCondition = 0x08
	CVMConditionICCCurrencyOverY             CVMCondition = 0x09
)

// CVMRule is one entry of the CVM List (tag 8E): a cardholder verification
// method to try, under what condition, and whether its failure should abort
// the rule chain.
type CVMRule struct {
	AmountX           uint32
	AmountY           uint32
	FailIfUnsuccessful bool
	Method            CVMMethod
	Condition         CVMCondition
}

// CVMOutcome is the result of attempting the CVM rule chain: whether a rule
// ran to success, a rule was attempted and failed, or none could be
// determined (e.g. a bare signature CVM, which this offline kernel cannot
// itself verify).
type CVMOutcome int

const (
	CVMUnknown CVMOutcome = iota
	CVMFailed
	CVMSuccessful
)

// CVMResultsValue encodes the 3-byte CVM Results, tag 9F34: the attempted
// rule's code byte (with bit 6 inverted to reflect whether the rule
// tolerates failure), its condition, and the outcome byte.
func CVMResultsValue(rule CVMRule, outcome CVMOutcome) []byte {
	code := byte(rule.Method)
	if !rule.FailIfUnsuccessful {
		code |= 0x40
	}

	var result byte
	switch outcome {
	case CVMSuccessful:
		result = 0x02
	case CVMFailed:
		result = 0x01
	default:
		result = 0x00
	}

	return []byte{code, byte(rule.Condition), result}
}
