package events

import (
	"math/big"
	"strings"

	"colend/crypto"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addrString(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}
