package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPageHTML = `
<html><body>
	<span id="productTitle"> Sony WH-1000XM4 Wireless Headphones </span>
	<div id="bylineInfo">Visit the Sony Store</div>
	<span class="a-price"><span class="a-offscreen">$278.00</span></span>
	<img id="landingImage" data-old-hires="https://img.example/hi-res.jpg" src="https://img.example/small.jpg"/>
	<div id="altImages"><ul>
		<li><img src="https://img.example/alt1._AC_US40_.jpg"/></li>
		<li><img src="https://img.example/alt2._AC_US40_.jpg"/></li>
	</ul></div>
	<table id="productDetails_techSpec_section_1">
		<tr><th>Color</th><td>Black</td></tr>
		<tr><th>Connectivity</th><td>Bluetooth 5.0</td></tr>
	</table>
	<div id="productDescription"><p>Industry leading <b>noise cancellation</b>.<script>alert(1)</script></p></div>
</body></html>`

func TestParseProductPage(t *testing.T) {
	parser := NewListingParser()

	listing, err := parser.ParseProductPage(productPageHTML, "B0863TXGM3", "https://www.amazon.com/dp/B0863TXGM3")
	require.NoError(t, err)

	assert.Equal(t, "B0863TXGM3", listing.SourceID)
	assert.Equal(t, "amazon", listing.Marketplace)
	assert.Equal(t, "Sony WH-1000XM4 Wireless Headphones", listing.Title)
	assert.Equal(t, "Sony", listing.Brand)
	assert.Equal(t, "$278.00", listing.SourcePriceRaw)

	require.Len(t, listing.Images, 3)
	assert.Equal(t, "https://img.example/hi-res.jpg", listing.Images[0])
	assert.Equal(t, "https://img.example/alt1._AC_SL1500_.jpg", listing.Images[1])

	assert.Equal(t, "Black", listing.Attributes["Color"])
	assert.Equal(t, "Bluetooth 5.0", listing.Attributes["Connectivity"])

	assert.Contains(t, listing.DescriptionHTML, "noise cancellation")
	assert.NotContains(t, listing.DescriptionHTML, "<script>")
}

func TestParseProductPagePriceFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "offscreen price",
			html:     `<span id="productTitle">T</span><span class="a-price"><span class="a-offscreen">£45.00</span></span>`,
			expected: "£45.00",
		},
		{
			name:     "deal price block",
			html:     `<span id="productTitle">T</span><span id="priceblock_dealprice">$19.99</span>`,
			expected: "$19.99",
		},
		{
			name: "whole and fraction stitched",
			html: `<span id="productTitle">T</span>
				<span class="a-price-symbol">$</span>
				<span class="a-price-whole">24.</span>
				<span class="a-price-fraction">99</span>`,
			expected: "$24.99",
		},
		{
			name:     "no price found",
			html:     `<span id="productTitle">T</span><div>Currently unavailable</div>`,
			expected: "",
		},
	}

	parser := NewListingParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := parser.ParseProductPage(tt.html, "ASIN", "https://www.amazon.com/dp/ASIN")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, listing.SourcePriceRaw)
		})
	}
}

func TestParseProductPageRequiresTitle(t *testing.T) {
	parser := NewListingParser()
	_, err := parser.ParseProductPage("<html><body><div>nothing here</div></body></html>", "X", "https://www.amazon.com")
	assert.Error(t, err)
}

func TestParseProductPageEbayMarketplace(t *testing.T) {
	parser := NewListingParser()
	html := `<h1 class="x-item-title__mainTitle">Vintage Camera</h1>
		<div class="x-price-primary"><span class="ux-textspans">US $120.00</span></div>`

	listing, err := parser.ParseProductPage(html, "155512345678", "https://www.ebay.com/itm/155512345678")
	require.NoError(t, err)
	assert.Equal(t, "ebay", listing.Marketplace)
	assert.Equal(t, "Vintage Camera", listing.Title)
	assert.Equal(t, "US $120.00", listing.SourcePriceRaw)
}

func TestDescriptionCappedAtFormLimit(t *testing.T) {
	long := strings.Repeat("very long description text ", 500)
	html := `<span id="productTitle">T</span><div id="productDescription"><p>` + long + `</p></div>`

	parser := NewListingParser()
	listing, err := parser.ParseProductPage(html, "A", "https://www.amazon.com/dp/A")
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(listing.DescriptionHTML)), maxDescriptionLength)
}
