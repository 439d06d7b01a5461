package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/flipline/crosslister/internal/models"
)

// maxDescriptionLength is the marketplace form limit for HTML descriptions.
const maxDescriptionLength = 8000

// ListingParser turns a captured product-page document into a SourceListing.
// Selector fallbacks mirror the marketplace page variants observed in the
// wild; the parser is the only place those selectors live.
type ListingParser struct {
	sanitizer *bluemonday.Policy
}

func NewListingParser() *ListingParser {
	return &ListingParser{
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// ParseProductPage extracts a SourceListing from raw HTML. The raw price may
// come back empty; callers treat an unparseable price as "price not found"
// and must not submit a listing from it.
func (p *ListingParser) ParseProductPage(html, sourceID, pageURL string) (*models.SourceListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	listing := models.NewSourceListing(sourceID, marketplaceFromURL(pageURL))
	listing.URL = pageURL
	listing.Title = extractTitle(doc)
	listing.Brand = extractBrand(doc)
	listing.SourcePriceRaw = extractPriceRaw(doc)
	listing.Images = extractImages(doc)
	listing.Attributes = extractAttributes(doc)
	listing.DescriptionHTML = p.extractDescription(doc)

	if listing.Title == "" {
		return nil, fmt.Errorf("no product title found")
	}

	return listing, nil
}

func marketplaceFromURL(pageURL string) string {
	if strings.Contains(pageURL, "ebay.") {
		return "ebay"
	}
	return "amazon"
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{"#productTitle", "#title", "h1.x-item-title__mainTitle", "h1"} {
		if title := strings.TrimSpace(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

func extractBrand(doc *goquery.Document) string {
	brand := doc.Find("#bylineInfo").Text()
	brand = strings.TrimPrefix(brand, "Brand: ")
	brand = strings.TrimPrefix(brand, "Visit the ")
	brand = strings.TrimSuffix(brand, " Store")
	brand = strings.TrimSpace(brand)
	if brand != "" {
		return brand
	}

	// Structured attribute rows carry the brand on many page variants.
	doc.Find("#productOverview_feature_div tr").EachWithBreak(func(i int, s *goquery.Selection) bool {
		label := strings.TrimSpace(s.Find("td").First().Text())
		if strings.EqualFold(label, "brand") {
			brand = strings.TrimSpace(s.Find("td").Last().Text())
			return false
		}
		return true
	})
	return brand
}

// extractPriceRaw walks the price selector cascade and returns the first
// non-empty currency-formatted string. The whole/fraction split used on some
// page variants is stitched back together.
func extractPriceRaw(doc *goquery.Document) string {
	selectors := []string{
		".a-price .a-offscreen",
		"#priceblock_dealprice",
		"#priceblock_ourprice",
		".x-price-primary .ux-textspans",
	}
	for _, selector := range selectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}

	whole := strings.TrimSpace(doc.Find(".a-price-whole").First().Text())
	fraction := strings.TrimSpace(doc.Find(".a-price-fraction").First().Text())
	symbol := strings.TrimSpace(doc.Find(".a-price-symbol").First().Text())
	if whole != "" {
		whole = strings.TrimSuffix(whole, ".")
		if fraction != "" {
			return symbol + whole + "." + fraction
		}
		return symbol + whole
	}
	return ""
}

func extractImages(doc *goquery.Document) []string {
	images := make([]string, 0)
	seen := make(map[string]struct{})

	add := func(src string) {
		src = strings.Replace(src, "_AC_US40_", "_AC_SL1500_", 1)
		if _, dup := seen[src]; dup || src == "" {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	}

	if hiRes, exists := doc.Find("#landingImage").Attr("data-old-hires"); exists {
		add(hiRes)
	}
	doc.Find("#altImages ul li img").Each(func(i int, s *goquery.Selection) {
		if src, exists := s.Attr("src"); exists {
			add(src)
		}
	})

	return images
}

// extractAttributes harvests the structured key/value rows from the product
// details table and the detail bullets list.
func extractAttributes(doc *goquery.Document) map[string]any {
	attrs := make(map[string]any)

	doc.Find("#productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr").Each(func(i int, s *goquery.Selection) {
		key := strings.TrimSpace(s.Find("th").First().Text())
		value := strings.TrimSpace(s.Find("td").First().Text())
		if key != "" && value != "" {
			attrs[key] = value
		}
	})

	doc.Find("#detailBullets_feature_div li").Each(func(i int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Find("span.a-text-bold").First().Text())
		label = strings.TrimSpace(strings.Trim(label, ":‏‎ "))
		value := strings.TrimSpace(s.Find("span.a-text-bold").First().Parent().Find("span").Last().Text())
		if label != "" && value != "" {
			if _, exists := attrs[label]; !exists {
				attrs[label] = value
			}
		}
	})

	return attrs
}

// extractDescription sanitizes the description HTML and caps it at the
// marketplace form limit.
func (p *ListingParser) extractDescription(doc *goquery.Document) string {
	for _, selector := range []string{"#productDescription", "#feature-bullets", "#aplus"} {
		section := doc.Find(selector).First()
		if section.Length() == 0 {
			continue
		}
		raw, err := section.Html()
		if err != nil {
			continue
		}
		clean := strings.TrimSpace(p.sanitizer.Sanitize(raw))
		if clean == "" {
			continue
		}
		if runes := []rune(clean); len(runes) > maxDescriptionLength {
			clean = string(runes[:maxDescriptionLength])
		}
		return clean
	}
	return ""
}
