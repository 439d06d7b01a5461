package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Domain identifies the marketplace-country context a listing is created in.
type Domain string

const (
	DomainUSA     Domain = "USA"
	DomainUK      Domain = "UK"
	DomainGermany Domain = "Germany"
	DomainFrance  Domain = "France"
	DomainSpain   Domain = "Spain"
	DomainItaly   Domain = "Italy"
	DomainJapan   Domain = "Japan"
	DomainIndia   Domain = "India"
)

var currencyGlyphs = []string{"$", "€", "£", "¥", "₹", "₽", "₩", "¢", "₫"}

var numericPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePrice strips currency glyphs and thousands separators from a raw
// marketplace price string and parses the remaining numeric substring.
// Returns NaN when no numeric substring remains; callers must treat NaN or 0
// as "price not found" and fall back to a secondary source.
func ParsePrice(raw string) float64 {
	s := raw
	for _, glyph := range currencyGlyphs {
		s = strings.ReplaceAll(s, glyph, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	match := numericPattern.FindString(s)
	if match == "" {
		return math.NaN()
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return math.NaN()
	}
	return value
}

// hostname suffixes are checked before the domain setting because a stored
// "selected domain" can be stale relative to the page actually being viewed.
var hostnameCurrencies = []struct {
	suffix string
	symbol string
}{
	{".co.uk", "£"},
	{".co.jp", "¥"},
	{".de", "€"},
	{".fr", "€"},
	{".es", "€"},
	{".it", "€"},
	{".in", "₹"},
	{".com", "$"},
}

var domainCurrencies = map[Domain]string{
	DomainUSA:     "$",
	DomainUK:      "£",
	DomainGermany: "€",
	DomainFrance:  "€",
	DomainSpain:   "€",
	DomainItaly:   "€",
	DomainJapan:   "¥",
	DomainIndia:   "₹",
}

// ResolveCurrencySymbol picks the active currency symbol, preferring the page
// hostname over the user's stored domain setting. Defaults to "$".
func ResolveCurrencySymbol(urlHostname string, domain Domain) string {
	host := strings.ToLower(strings.TrimSpace(urlHostname))
	for _, entry := range hostnameCurrencies {
		if strings.HasSuffix(host, entry.suffix) {
			return entry.symbol
		}
	}

	if symbol, ok := domainCurrencies[domain]; ok {
		return symbol
	}
	return "$"
}
