package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveKeys marks attribute keys whose values never reach the log
// stream: bearer tokens, signing secrets, keystore passphrases.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"secret":        {},
	"authorization": {},
	"password":      {},
	"passphrase":    {},
	"signature":     {},
	"private_key":   {},
	"api_key":       {},
}

// IsSensitive reports whether values logged under key must be masked. The
// match is case-insensitive and covers suffixed forms such as auth_token or
// webhook_secret.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[normalized]; ok {
		return true
	}
	for marker := range sensitiveKeys {
		if strings.HasSuffix(normalized, "_"+marker) {
			return true
		}
	}
	return false
}

// MaskAttr returns attr with its value replaced by the redaction placeholder
// when the key is sensitive. Empty values pass through so absent fields stay
// recognisable in the output.
func MaskAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
