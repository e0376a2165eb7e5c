package coordinator

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

const (
	legacyLengthThreshold = 200
	truncatedLength       = 50
)

var (
	legacyCharsRegex = regexp.MustCompile(`[ @+,]`)
	uuidRegex        = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// NormalizePartnerID applies the legacy-payload cleanup: a well-formed id
// passes through unchanged; anything over the length threshold or carrying
// separator characters a legacy producer might have concatenated onto it is
// reduced to an embedded UUID if one is present, else truncated.
func NormalizePartnerID(raw string) string {
	if len(raw) <= legacyLengthThreshold && !legacyCharsRegex.MatchString(raw) {
		return raw
	}
	if embedded := uuidRegex.FindString(raw); embedded != "" && domain.ValidateUUID(embedded) == nil {
		return embedded
	}
	if domain.ValidateRequiredStringWithLength("partner_id", raw, truncatedLength) != nil {
		return raw[:truncatedLength]
	}
	return raw
}

// NewTempPartnerID mints the placeholder id a CreatePartnerCommand is keyed
// under before any real partner exists: "temp-" followed by 8 hex digits.
func NewTempPartnerID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "temp-" + hex.EncodeToString(buf), nil
}
