package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flipline/crosslister/internal/models"
)

// ErrDraftNotFound is returned when a draft ID has no stored row.
var ErrDraftNotFound = errors.New("draft not found")

// DraftRepository persists assembled listing drafts.
type DraftRepository struct {
	db *DB
}

func NewDraftRepository(db *DB) *DraftRepository {
	return &DraftRepository{db: db}
}

type draftRow struct {
	ID           string          `db:"id"`
	SourceID     string          `db:"source_id"`
	Marketplace  string          `db:"marketplace"`
	Candidates   json.RawMessage `db:"title_candidates"`
	Selected     int             `db:"selected_title"`
	Attributes   json.RawMessage `db:"attributes"`
	Bullets      json.RawMessage `db:"bullets"`
	Pricing      json.RawMessage `db:"pricing"`
	Status       string          `db:"status"`
	BlockedBrand *string         `db:"blocked_brand"`
	VeroOverride bool            `db:"vero_override"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// Save upserts a draft by ID.
func (r *DraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	candidates, err := json.Marshal(draft.TitleCandidates)
	if err != nil {
		return fmt.Errorf("failed to marshal title candidates: %w", err)
	}
	attributes, err := json.Marshal(draft.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	bullets, err := json.Marshal(draft.Bullets)
	if err != nil {
		return fmt.Errorf("failed to marshal bullets: %w", err)
	}
	var pricingJSON json.RawMessage
	if draft.Pricing != nil {
		pricingJSON, err = json.Marshal(draft.Pricing)
		if err != nil {
			return fmt.Errorf("failed to marshal pricing: %w", err)
		}
	}

	var blockedBrand *string
	if draft.BlockedBrand != "" {
		blockedBrand = &draft.BlockedBrand
	}

	draft.UpdatedAt = time.Now()

	query := `
		INSERT INTO listing_draft (
			id, source_id, marketplace, title_candidates, selected_title,
			attributes, bullets, pricing, status, blocked_brand,
			vero_override, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			title_candidates = EXCLUDED.title_candidates,
			selected_title = EXCLUDED.selected_title,
			attributes = EXCLUDED.attributes,
			bullets = EXCLUDED.bullets,
			pricing = EXCLUDED.pricing,
			status = EXCLUDED.status,
			blocked_brand = EXCLUDED.blocked_brand,
			vero_override = EXCLUDED.vero_override,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		draft.ID, draft.SourceID, draft.Marketplace, candidates, draft.SelectedTitle,
		attributes, bullets, pricingJSON, string(draft.Status), blockedBrand,
		draft.VeroOverride, draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Get loads a draft by ID.
func (r *DraftRepository) Get(ctx context.Context, id string) (*models.Draft, error) {
	query := `
		SELECT id, source_id, marketplace, title_candidates, selected_title,
			attributes, bullets, pricing, status, blocked_brand,
			vero_override, created_at, updated_at
		FROM listing_draft
		WHERE id = $1`

	var row draftRow
	err := r.db.QueryRow(ctx, query, id).Scan(
		&row.ID, &row.SourceID, &row.Marketplace, &row.Candidates, &row.Selected,
		&row.Attributes, &row.Bullets, &row.Pricing, &row.Status, &row.BlockedBrand,
		&row.VeroOverride, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	draft := &models.Draft{
		ID:            row.ID,
		SourceID:      row.SourceID,
		Marketplace:   row.Marketplace,
		SelectedTitle: row.Selected,
		Status:        models.DraftStatus(row.Status),
		VeroOverride:  row.VeroOverride,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.BlockedBrand != nil {
		draft.BlockedBrand = *row.BlockedBrand
	}
	if err := json.Unmarshal(row.Candidates, &draft.TitleCandidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal title candidates: %w", err)
	}
	if err := json.Unmarshal(row.Attributes, &draft.Attributes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}
	if err := json.Unmarshal(row.Bullets, &draft.Bullets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bullets: %w", err)
	}
	if len(row.Pricing) > 0 {
		if err := json.Unmarshal(row.Pricing, &draft.Pricing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pricing: %w", err)
		}
	}

	return draft, nil
}

// UpdateStatus transitions a draft's status, recording a VeRO override when
// the submission was forced past the denylist gate.
func (r *DraftRepository) UpdateStatus(ctx context.Context, id string, status models.DraftStatus, veroOverride bool) error {
	query := `
		UPDATE listing_draft
		SET status = $1, vero_override = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(ctx, query, string(status), veroOverride, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update draft status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDraftNotFound
	}
	return nil
}
