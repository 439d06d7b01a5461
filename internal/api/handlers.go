package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flipline/crosslister/internal/database"
	"github.com/flipline/crosslister/internal/listing"
	"github.com/flipline/crosslister/internal/models"
	"github.com/flipline/crosslister/internal/parser"
	"github.com/flipline/crosslister/internal/pricing"
	"github.com/flipline/crosslister/internal/settings"
	"github.com/flipline/crosslister/internal/titles"
)

// PageFetcher captures a product page server-side when the client sends a
// URL without HTML.
type PageFetcher interface {
	FetchProductPage(ctx context.Context, url string) (string, error)
}

// DenylistStore is the read-write view of the VeRO brand denylist.
type DenylistStore interface {
	Brands(ctx context.Context) ([]string, error)
	Add(ctx context.Context, brand string) error
}

type Handlers struct {
	listings *listing.Service
	parser   *parser.ListingParser
	settings *settings.Store
	denylist DenylistStore
	fetcher  PageFetcher
	logger   *slog.Logger
}

func NewHandlers(
	listings *listing.Service,
	listingParser *parser.ListingParser,
	settingsStore *settings.Store,
	denylist DenylistStore,
	fetcher PageFetcher,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		listings: listings,
		parser:   listingParser,
		settings: settingsStore,
		denylist: denylist,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// AssembleRequest carries a captured product page for draft assembly. The
// extension ships the raw page HTML; parsing happens server-side.
type AssembleRequest struct {
	SourceID       string   `json:"source_id"`
	URL            string   `json:"url"`
	HTML           string   `json:"html"`
	User           string   `json:"user"`
	RequiredFields []string `json:"required_fields,omitempty"`
}

// AssembleDraft parses the captured page and runs the full assembly pipeline.
func (h *Handlers) AssembleDraft(w http.ResponseWriter, r *http.Request) {
	var req AssembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SourceID == "" {
		h.respondError(w, http.StatusBadRequest, "source_id is required")
		return
	}

	if req.HTML == "" {
		if req.URL == "" || h.fetcher == nil {
			h.respondError(w, http.StatusBadRequest, "either html or a fetchable url is required")
			return
		}
		html, err := h.fetcher.FetchProductPage(r.Context(), req.URL)
		if err != nil {
			h.logger.Error("failed to fetch product page", "error", err, "url", req.URL)
			h.respondError(w, http.StatusBadGateway, "could not fetch product page")
			return
		}
		req.HTML = html
	}

	src, err := h.parser.ParseProductPage(req.HTML, req.SourceID, req.URL)
	if err != nil {
		h.logger.Error("failed to parse product page", "error", err, "source_id", req.SourceID)
		h.respondError(w, http.StatusUnprocessableEntity, "could not parse product page")
		return
	}

	draft, err := h.listings.Assemble(r.Context(), listing.AssembleRequest{
		Listing:        src,
		User:           req.User,
		RequiredFields: req.RequiredFields,
	})
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidPrice) {
			h.respondError(w, http.StatusUnprocessableEntity, "source listing has no valid price")
			return
		}
		h.logger.Error("failed to assemble draft", "error", err, "source_id", req.SourceID)
		h.respondError(w, http.StatusInternalServerError, "failed to assemble draft")
		return
	}

	// The draft is stored even when blocked so the user can force an
	// override later; the status code signals the block.
	if draft.Status == models.DraftStatusBlocked {
		h.respondJSON(w, http.StatusConflict, DraftResponse{
			Draft:        draft,
			Blocked:      true,
			BlockedBrand: draft.BlockedBrand,
		})
		return
	}

	h.respondJSON(w, http.StatusCreated, draft)
}

// GetDraft handles draft retrieval.
func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	if draftID == "" {
		h.respondError(w, http.StatusBadRequest, "draft ID is required")
		return
	}

	draft, err := h.listings.Get(r.Context(), draftID)
	if err != nil {
		if errors.Is(err, database.ErrDraftNotFound) {
			h.respondError(w, http.StatusNotFound, "draft not found")
			return
		}
		h.logger.Error("failed to load draft", "error", err, "draft_id", draftID)
		h.respondError(w, http.StatusInternalServerError, "failed to load draft")
		return
	}

	h.respondJSON(w, http.StatusOK, draft)
}

// SubmitRequest carries the submission decision for a draft.
type SubmitRequest struct {
	User  string `json:"user"`
	Force bool   `json:"force"`
}

// DraftResponse wraps a draft together with its VeRO block state.
type DraftResponse struct {
	Draft        *models.Draft `json:"draft"`
	Blocked      bool          `json:"blocked"`
	BlockedBrand string        `json:"blocked_brand,omitempty"`
}

// SubmitDraft finalizes a draft. A denylist hit returns 409 with the brand
// so the extension can offer the override dialog.
func (h *Handlers) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	if draftID == "" {
		h.respondError(w, http.StatusBadRequest, "draft ID is required")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft, err := h.listings.Submit(r.Context(), draftID, req.User, req.Force)
	if err != nil {
		var blocked *titles.VeroBlockedError
		if errors.As(err, &blocked) {
			h.respondJSON(w, http.StatusConflict, DraftResponse{
				Draft:        draft,
				Blocked:      true,
				BlockedBrand: blocked.Brand,
			})
			return
		}
		if errors.Is(err, database.ErrDraftNotFound) {
			h.respondError(w, http.StatusNotFound, "draft not found")
			return
		}
		if errors.Is(err, pricing.ErrInvalidPrice) {
			h.respondError(w, http.StatusUnprocessableEntity, "draft has no valid pricing")
			return
		}
		h.logger.Error("failed to submit draft", "error", err, "draft_id", draftID)
		h.respondError(w, http.StatusInternalServerError, "failed to submit draft")
		return
	}

	h.respondJSON(w, http.StatusOK, DraftResponse{Draft: draft})
}

// SelectTitleRequest moves the selected title to another candidate.
type SelectTitleRequest struct {
	Index int `json:"index"`
}

func (h *Handlers) SelectTitle(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	if draftID == "" {
		h.respondError(w, http.StatusBadRequest, "draft ID is required")
		return
	}

	var req SelectTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft, err := h.listings.OverrideTitle(r.Context(), draftID, req.Index)
	if err != nil {
		if errors.Is(err, database.ErrDraftNotFound) {
			h.respondError(w, http.StatusNotFound, "draft not found")
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, draft)
}

// PricingPreviewRequest carries a raw price plus the pricing settings to
// apply. Raw string parsing mirrors what the extension scrapes off the page.
// CompetitorPrice is optional: when set, the response also reports what a
// competitor listed at that price nets after fees.
type PricingPreviewRequest struct {
	PriceRaw         string  `json:"price_raw"`
	URL              string  `json:"url,omitempty"`
	Domain           string  `json:"domain"`
	MarkupPercentage float64 `json:"markup_percentage"`
	EndPriceAddition float64 `json:"end_price_addition"`
	CompetitorPrice  float64 `json:"competitor_price,omitempty"`
}

// PricingPreviewResponse extends the computed pricing with the optional
// competitor breakeven.
type PricingPreviewResponse struct {
	*pricing.Computed
	CompetitorBreakeven float64 `json:"competitor_breakeven,omitempty"`
}

// PricingPreview computes advisory pricing without touching any draft.
func (h *Handlers) PricingPreview(w http.ResponseWriter, r *http.Request) {
	var req PricingPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price := pricing.ParsePrice(req.PriceRaw)
	ctx := pricing.Context{
		Domain:           pricing.Domain(req.Domain),
		MarkupPercentage: req.MarkupPercentage,
		EndPriceAddition: req.EndPriceAddition,
	}

	computed, err := pricing.Preview(price, ctx)
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, "invalid source price")
		return
	}

	resp := PricingPreviewResponse{Computed: computed}
	if req.CompetitorPrice > 0 {
		competitor, err := pricing.ComputeCompetitorBreakeven(req.CompetitorPrice, ctx.Domain)
		if err != nil {
			h.respondError(w, http.StatusUnprocessableEntity, "invalid competitor price")
			return
		}
		resp.CompetitorBreakeven = competitor
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// VeroCheckRequest asks whether a title would trip the denylist.
type VeroCheckRequest struct {
	Title string `json:"title"`
}

type VeroCheckResponse struct {
	Blocked bool   `json:"blocked"`
	Brand   string `json:"brand,omitempty"`
}

func (h *Handlers) VeroCheck(w http.ResponseWriter, r *http.Request) {
	var req VeroCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	brands, err := h.denylist.Brands(r.Context())
	if err != nil {
		h.logger.Error("failed to load denylist", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load denylist")
		return
	}

	brand := titles.MatchesDenylist(req.Title, brands)
	h.respondJSON(w, http.StatusOK, VeroCheckResponse{
		Blocked: brand != "",
		Brand:   brand,
	})
}

// AddBrandRequest adds a brand to the VeRO denylist.
type AddBrandRequest struct {
	Brand string `json:"brand"`
}

func (h *Handlers) AddBrand(w http.ResponseWriter, r *http.Request) {
	var req AddBrandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Brand) <= 1 {
		h.respondError(w, http.StatusBadRequest, "brand must be longer than one character")
		return
	}

	if err := h.denylist.Add(r.Context(), req.Brand); err != nil {
		h.logger.Error("failed to add denylist brand", "error", err, "brand", req.Brand)
		h.respondError(w, http.StatusInternalServerError, "failed to add brand")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]string{"brand": req.Brand})
}

// GetSetting reads one user setting.
func (h *Handlers) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "setting key is required")
		return
	}

	value, err := h.settings.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to read setting", "error", err, "key", key)
		h.respondError(w, http.StatusInternalServerError, "failed to read setting")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// PutSettingRequest updates one user setting.
type PutSettingRequest struct {
	Value string `json:"value"`
}

func (h *Handlers) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "setting key is required")
		return
	}

	var req PutSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error("failed to write setting", "error", err, "key", key)
		h.respondError(w, http.StatusInternalServerError, "failed to write setting")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
