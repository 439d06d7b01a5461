package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func previewRequest(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := NewHandlers(nil, nil, nil, nil, nil, slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/preview", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PricingPreview(rec, req)
	return rec
}

func TestPricingPreview(t *testing.T) {
	t.Run("computes sell price from raw price", func(t *testing.T) {
		rec := previewRequest(t, `{
			"price_raw": "$45.00",
			"domain": "USA",
			"markup_percentage": 8,
			"end_price_addition": 1.5
		}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp PricingPreviewResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.InDelta(t, 45.0, resp.SourcePrice, 0.001)
		assert.InDelta(t, 51.36, resp.BreakevenPrice, 0.001)
		assert.InDelta(t, 50.1, resp.SellPrice, 0.001)
	})

	t.Run("includes competitor breakeven when a competitor price is given", func(t *testing.T) {
		rec := previewRequest(t, `{
			"price_raw": "100",
			"domain": "UK",
			"markup_percentage": 0,
			"end_price_addition": 0,
			"competitor_price": 100
		}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp PricingPreviewResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.InDelta(t, 109.96, resp.BreakevenPrice, 0.001)
		assert.InDelta(t, 90.04, resp.CompetitorBreakeven, 0.001)
	})

	t.Run("omits competitor breakeven by default", func(t *testing.T) {
		rec := previewRequest(t, `{
			"price_raw": "100",
			"domain": "USA"
		}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var raw map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
		assert.NotContains(t, raw, "competitor_breakeven")
	})

	t.Run("rejects unparseable source price", func(t *testing.T) {
		rec := previewRequest(t, `{
			"price_raw": "Currently unavailable",
			"domain": "USA"
		}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("rejects invalid request body", func(t *testing.T) {
		rec := previewRequest(t, `not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
