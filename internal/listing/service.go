package listing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/flipline/crosslister/internal/bullets"
	"github.com/flipline/crosslister/internal/events"
	"github.com/flipline/crosslister/internal/models"
	"github.com/flipline/crosslister/internal/pricing"
	"github.com/flipline/crosslister/internal/resolver"
	"github.com/flipline/crosslister/internal/titles"
)

// DraftStore persists assembled drafts.
type DraftStore interface {
	Save(ctx context.Context, draft *models.Draft) error
	Get(ctx context.Context, id string) (*models.Draft, error)
	UpdateStatus(ctx context.Context, id string, status models.DraftStatus, veroOverride bool) error
}

// DenylistSource supplies the VeRO brand snapshot.
type DenylistSource interface {
	Brands(ctx context.Context) ([]string, error)
}

// SettingsSource supplies the user's pricing configuration.
type SettingsSource interface {
	PricingContext(ctx context.Context, user string) pricing.Context
}

// EventPublisher emits listing lifecycle events.
type EventPublisher interface {
	PublishDraftEvent(ctx context.Context, eventType events.EventType, draft *models.Draft) error
}

// DefaultRequiredFields is used when the caller does not pass the
// marketplace form's current field names.
var DefaultRequiredFields = []string{"Brand", "Type", "Model", "Region", "Unit Quantity"}

// Service assembles complete listing drafts from scraped source listings.
// Field and bullet resolution run sequentially within one assembly: the
// resolvers share the draft's accumulators and must not race on them.
type Service struct {
	drafts    DraftStore
	denylist  DenylistSource
	settings  SettingsSource
	publisher EventPublisher
	resolver  *resolver.Resolver
	bullets   *bullets.Generator
	titles    *titles.Pipeline
	logger    *slog.Logger
}

func NewService(
	drafts DraftStore,
	denylist DenylistSource,
	settings SettingsSource,
	publisher EventPublisher,
	fieldResolver *resolver.Resolver,
	bulletGen *bullets.Generator,
	titlePipeline *titles.Pipeline,
	logger *slog.Logger,
) *Service {
	return &Service{
		drafts:    drafts,
		denylist:  denylist,
		settings:  settings,
		publisher: publisher,
		resolver:  fieldResolver,
		bullets:   bulletGen,
		titles:    titlePipeline,
		logger:    logger.With("component", "listing_service"),
	}
}

// AssembleRequest carries one assembly attempt's inputs.
type AssembleRequest struct {
	Listing        *models.SourceListing
	User           string
	RequiredFields []string
}

// Assemble runs the full pipeline for one source listing: pricing (advisory
// preview), the VeRO gate, title candidates, field resolution and bullet
// generation. An invalid source price halts assembly. A denylist match does
// not: the draft is assembled and stored as blocked so the user can decide
// on an override.
func (s *Service) Assemble(ctx context.Context, req AssembleRequest) (*models.Draft, error) {
	src := req.Listing
	if src == nil {
		return nil, fmt.Errorf("no source listing provided")
	}

	sourcePrice := pricing.ParsePrice(src.SourcePriceRaw)
	priceCtx := s.settings.PricingContext(ctx, req.User)
	computed, err := pricing.Preview(sourcePrice, priceCtx)
	if err != nil {
		return nil, fmt.Errorf("pricing failed for %q: %w", src.SourceID, err)
	}
	computed.CurrencySymbol = pricing.ResolveCurrencySymbol(hostnameOf(src.URL), priceCtx.Domain)

	brands, err := s.denylist.Brands(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load denylist: %w", err)
	}

	draft := models.NewDraft(src.SourceID, src.Marketplace)
	draft.Pricing = computed

	if brand := titles.MatchesDenylist(src.Title, brands); brand != "" {
		s.logger.Warn("source title matches denylist",
			"source_id", src.SourceID, "brand", brand)
		draft.Status = models.DraftStatusBlocked
		draft.BlockedBrand = brand
	}

	titleResult := s.titles.Generate(ctx, src.Title, src.Brand, brands)
	draft.TitleCandidates = titleResult.Candidates
	draft.SelectedTitle = titleResult.Selected

	productCtx := resolver.ProductContext{
		Title:       src.Title,
		Description: src.DescriptionHTML,
		Attributes:  src.Attributes,
		SourceID:    src.SourceID,
	}

	fields := req.RequiredFields
	if len(fields) == 0 {
		fields = DefaultRequiredFields
	}
	for _, field := range fields {
		res := s.resolver.Resolve(ctx, field, productCtx)
		if !draft.Attributes.Put(field, res.Value) {
			continue
		}
		s.logger.Debug("field resolved",
			"field", field, "source", string(res.Source))
	}

	draft.Bullets = s.bullets.Generate(ctx, productCtx)

	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	if err := s.publisher.PublishDraftEvent(ctx, events.EventTypeListingDraftReady, draft); err != nil {
		s.logger.Error("failed to publish draft event", "draft_id", draft.ID, "error", err)
	}

	return draft, nil
}

// Get loads a stored draft.
func (s *Service) Get(ctx context.Context, draftID string) (*models.Draft, error) {
	return s.drafts.Get(ctx, draftID)
}

// Submit finalizes a draft: the VeRO gate runs again on the selected title
// (unless force carries a user-confirmed override), and the submission-time
// pricing with the minimum markup floor replaces the advisory preview.
func (s *Service) Submit(ctx context.Context, draftID, user string, force bool) (*models.Draft, error) {
	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status == models.DraftStatusSubmitted {
		return nil, fmt.Errorf("draft %s already submitted", draftID)
	}

	if !force {
		brands, err := s.denylist.Brands(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load denylist: %w", err)
		}
		if brand := titles.MatchesDenylist(draft.Title(), brands); brand != "" {
			draft.Status = models.DraftStatusBlocked
			draft.BlockedBrand = brand
			if saveErr := s.drafts.Save(ctx, draft); saveErr != nil {
				s.logger.Error("failed to persist blocked draft", "draft_id", draftID, "error", saveErr)
			}
			return draft, &titles.VeroBlockedError{Brand: brand}
		}
	}

	if draft.Pricing == nil {
		return nil, pricing.ErrInvalidPrice
	}
	priceCtx := s.settings.PricingContext(ctx, user)
	final, err := pricing.ForSubmission(draft.Pricing.SourcePrice, priceCtx)
	if err != nil {
		return nil, fmt.Errorf("submission pricing failed: %w", err)
	}
	final.CurrencySymbol = draft.Pricing.CurrencySymbol
	draft.Pricing = final

	draft.Status = models.DraftStatusSubmitted
	draft.VeroOverride = force
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save submitted draft: %w", err)
	}

	if err := s.publisher.PublishDraftEvent(ctx, events.EventTypeListingSubmitted, draft); err != nil {
		s.logger.Error("failed to publish submit event", "draft_id", draft.ID, "error", err)
	}

	return draft, nil
}

// OverrideTitle moves the selected-title pointer to another candidate. The
// candidate sequence itself never changes after assembly.
func (s *Service) OverrideTitle(ctx context.Context, draftID string, index int) (*models.Draft, error) {
	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(draft.TitleCandidates) {
		return nil, fmt.Errorf("title index %d out of range", index)
	}
	draft.SelectedTitle = index
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return draft, nil
}

func hostnameOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
