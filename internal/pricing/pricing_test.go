package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBreakeven(t *testing.T) {
	tests := []struct {
		name        string
		sourcePrice float64
		domain      Domain
		expected    float64
		expectErr   bool
	}{
		{
			name:        "USA formula",
			sourcePrice: 100,
			domain:      DomainUSA,
			expected:    113.45,
		},
		{
			name:        "UK uses international formula",
			sourcePrice: 100,
			domain:      DomainUK,
			expected:    109.96,
		},
		{
			name:        "unrecognized domain falls back to international formula",
			sourcePrice: 100,
			domain:      Domain("Mars"),
			expected:    109.96,
		},
		{
			name:        "UK end-to-end scenario price",
			sourcePrice: 45,
			domain:      DomainUK,
			expected:    49.75,
		},
		{
			name:        "zero price rejected",
			sourcePrice: 0,
			domain:      DomainUSA,
			expectErr:   true,
		},
		{
			name:        "negative price rejected",
			sourcePrice: -5,
			domain:      DomainUK,
			expectErr:   true,
		},
		{
			name:        "NaN price rejected",
			sourcePrice: math.NaN(),
			domain:      DomainUSA,
			expectErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeBreakeven(tt.sourcePrice, tt.domain)
			if tt.expectErr {
				require.ErrorIs(t, err, ErrInvalidPrice)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}
}

func TestComputeCompetitorBreakeven(t *testing.T) {
	tests := []struct {
		name        string
		listedPrice float64
		domain      Domain
		expected    float64
	}{
		{
			name:        "USA backward inference",
			listedPrice: 100,
			domain:      DomainUSA,
			expected:    86.55,
		},
		{
			name:        "international backward inference",
			listedPrice: 100,
			domain:      DomainGermany,
			expected:    90.04,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCompetitorBreakeven(tt.listedPrice, tt.domain)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}

	t.Run("invalid price rejected", func(t *testing.T) {
		_, err := ComputeCompetitorBreakeven(0, DomainUSA)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("forward and backward formulas are not inverses", func(t *testing.T) {
		// Projecting forward then inferring backward does not return to the
		// starting price; the two operations answer different questions.
		forward, err := ComputeBreakeven(100, DomainUSA)
		require.NoError(t, err)
		backward, err := ComputeCompetitorBreakeven(forward, DomainUSA)
		require.NoError(t, err)
		assert.NotEqual(t, 100.0, backward)
	})
}

func TestComputeSellPrice(t *testing.T) {
	tests := []struct {
		name             string
		sourcePrice      float64
		markupPercentage float64
		endPriceAddition float64
		expected         float64
		expectErr        bool
	}{
		{
			name:        "no markup and no addition returns rounded source price",
			sourcePrice: 12.345,
			expected:    12.35,
		},
		{
			name:             "UK end-to-end scenario",
			sourcePrice:      45,
			markupPercentage: 20,
			endPriceAddition: 2.50,
			expected:         56.50,
		},
		{
			name:             "100 percent markup doubles the price",
			sourcePrice:      19.99,
			markupPercentage: 100,
			expected:         39.98,
		},
		{
			name:             "rounding applied before flat addition",
			sourcePrice:      10.004,
			markupPercentage: 0,
			endPriceAddition: 0.001,
			expected:         10.001,
		},
		{
			name:        "zero price rejected",
			sourcePrice: 0,
			expectErr:   true,
		},
		{
			name:        "NaN price rejected",
			sourcePrice: math.NaN(),
			expectErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeSellPrice(tt.sourcePrice, tt.markupPercentage, tt.endPriceAddition)
			if tt.expectErr {
				require.ErrorIs(t, err, ErrInvalidPrice)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestEnforceMinimumMarkupFloor(t *testing.T) {
	assert.InDelta(t, 110.00, EnforceMinimumMarkupFloor(101, 100), 0.001)
	assert.InDelta(t, 150.00, EnforceMinimumMarkupFloor(150, 100), 0.001)
	assert.InDelta(t, 110.00, EnforceMinimumMarkupFloor(110, 100), 0.001)
}

func TestPreviewAndSubmissionDiverge(t *testing.T) {
	ctx := Context{Domain: DomainUSA, MarkupPercentage: 1}

	preview, err := Preview(100, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 101.00, preview.SellPrice, 0.001)

	final, err := ForSubmission(100, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 110.00, final.SellPrice, 0.001)

	// Breakeven is identical on both paths; only the sell price floors.
	assert.InDelta(t, preview.BreakevenPrice, final.BreakevenPrice, 0.001)
}

func TestPreviewCurrencySymbol(t *testing.T) {
	preview, err := Preview(50, Context{Domain: DomainUK})
	require.NoError(t, err)
	assert.Equal(t, "£", preview.CurrencySymbol)
}
