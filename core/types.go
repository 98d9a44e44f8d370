package emv

// Application is one entry enumerated from the Payment System Environment:
// an AID the terminal may select, with its display label and selection
// priority. Entries without a priority byte are skipped during enumeration
// and never appear here.
type Application struct {
	AID      []byte
	Label    []byte
	Priority byte
}

// Capabilities mirrors the Application Interchange Profile (tag 82) bit
// flags that describe what offline authentication and cardholder
// verification the ICC supports.
type Capabilities struct {
	SDA                     bool
	DDA                     bool
	CDA                     bool
	CardholderVerification  bool
	TerminalRiskManagement  bool
	IssuerAuthentication    bool
}

// UsageControl mirrors the Application Usage Control (tag 9F07) bit flags:
// where and for what this application may be used.
type UsageControl struct {
	DomesticCash         bool
	InternationalCash    bool
	DomesticGoods        bool
	InternationalGoods   bool
	DomesticServices     bool
	InternationalServices bool
	ATMs                 bool
	TerminalsOtherThanATMs bool
	DomesticCashback     bool
	InternationalCashback bool
}

// ICC accumulates the parts of GET PROCESSING OPTIONS that describe the
// card's own decisions rather than raw tag bytes: its capabilities, its
// usage restrictions, and its ordered CVM rule chain.
type ICC struct {
	Capabilities Capabilities
	Usage        UsageControl
	CVMRules     []CVMRule
}

// TagDictionary maps a tag's uppercase hex identifier to its human name,
// used only for diagnostics (DumpTags) — never consulted by the protocol
// engine itself.
type TagDictionary map[string]string

// CAKeyTable maps a 5-byte RID's uppercase hex prefix to a CA public-key
// index to the scheme's RSA public key.
type CAKeyTable map[string]map[string]RSAPublicKey
