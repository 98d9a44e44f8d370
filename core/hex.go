package emv

import (
	"encoding/hex"
	"strings"
)

// hexUpper renders b as uppercase hex, the form every tag key and trace log
// in this package uses.
func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
