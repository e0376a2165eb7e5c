package bus

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

// legacyFramingPrefix marks a byte blob from the one known legacy producer
// that does not emit well-formed JSON; Decode strips it before the second
// decode attempt.
const legacyFramingPrefix = 'H'

// Decode parses raw as a JSON object. New producers MUST emit well-formed
// JSON and hit the fast path. If JSON decoding fails, Decode falls back to
// stripping non-printable characters and, if the first byte is the known
// legacy framing prefix, dropping it; it then retries JSON decoding, and if
// that fails too returns the cleaned text as a plain string under the "raw"
// key. This fallback exists solely for compatibility with a legacy
// producer; it is never the preferred path.
func Decode(raw []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}

	cleaned := stripNonPrintable(raw)
	if len(cleaned) > 0 && cleaned[0] == legacyFramingPrefix {
		cleaned = cleaned[1:]
	}

	var fallback map[string]interface{}
	if err := json.Unmarshal(cleaned, &fallback); err == nil {
		return fallback, nil
	}

	if len(cleaned) == 0 {
		return nil, domain.NewValidationError("message payload is empty after fallback decode")
	}

	return map[string]interface{}{"raw": string(cleaned)}, nil
}

func stripNonPrintable(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, r := range string(raw) {
		if unicode.IsPrint(r) {
			out = append(out, string(r)...)
		}
	}
	return []byte(strings.TrimSpace(string(out)))
}
