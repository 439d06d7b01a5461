package titles

import (
	"fmt"
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// VeroBlockedError reports a title blocked by the brand denylist. Submission
// may still proceed through an explicit user-confirmed override.
type VeroBlockedError struct {
	Brand string
}

func (e *VeroBlockedError) Error() string {
	return fmt.Sprintf("title blocked by denylisted brand %q", e.Brand)
}

// StripBrand removes every case-insensitive occurrence of brand from title,
// collapsing the resulting double spaces.
func StripBrand(title, brand string) string {
	if strings.TrimSpace(brand) == "" {
		return strings.TrimSpace(title)
	}
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(brand))
	stripped := pattern.ReplaceAllString(title, "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(stripped, " "))
}

// StripAllKnownBrands removes the primary brand and every denylist entry from
// the title as whole words. Removal order is deterministic (primary brand
// first, then denylist entries in stored order) because overlapping brand
// substrings removed in a different order can leave different residual text.
func StripAllKnownBrands(title, primaryBrand string, denylist []string) string {
	candidates := make([]string, 0, len(denylist)+1)
	if len(primaryBrand) > 1 {
		candidates = append(candidates, primaryBrand)
	}
	for _, brand := range denylist {
		if len(brand) > 1 {
			candidates = append(candidates, brand)
		}
	}

	result := title
	for _, brand := range candidates {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(brand) + `\b`)
		result = pattern.ReplaceAllString(result, "")
	}
	return strings.TrimSpace(multiSpace.ReplaceAllString(result, " "))
}

// MatchesDenylist returns the first denylist brand appearing as a whole word
// (case-insensitive) in text, or empty when none match. It gates listing
// submission and short-circuits on first match; denylists can be large, so a
// cheap substring check runs before the word-boundary confirmation.
func MatchesDenylist(text string, denylist []string) string {
	lower := strings.ToLower(text)
	for _, brand := range denylist {
		if len(brand) <= 1 {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(brand)) {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(brand) + `\b`)
		if pattern.MatchString(text) {
			return brand
		}
	}
	return ""
}
