package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/flipline/crosslister/internal/pricing"
)

type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusBlocked   DraftStatus = "blocked"
	DraftStatusSubmitted DraftStatus = "submitted"
)

// Draft is one assembled listing awaiting submission. Its accumulators
// (Attributes, Bullets) are owned exclusively by the in-flight attempt and
// are discarded, not reused, if the attempt is aborted.
type Draft struct {
	ID              string            `json:"id"`
	SourceID        string            `json:"source_id"`
	Marketplace     string            `json:"marketplace"`
	TitleCandidates []TitleCandidate  `json:"title_candidates"`
	SelectedTitle   int               `json:"selected_title"` // index into TitleCandidates
	Attributes      AttributeSet      `json:"attributes"`
	Bullets         BulletSet         `json:"bullets"`
	Pricing         *pricing.Computed `json:"pricing,omitempty"`
	Status          DraftStatus       `json:"status"`
	BlockedBrand    string            `json:"blocked_brand,omitempty"`
	VeroOverride    bool              `json:"vero_override"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func NewDraft(sourceID, marketplace string) *Draft {
	now := time.Now()
	return &Draft{
		ID:            uuid.New().String(),
		SourceID:      sourceID,
		Marketplace:   marketplace,
		SelectedTitle: -1,
		Attributes:    make(AttributeSet),
		Status:        DraftStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Title returns the currently selected title, or empty when none is selected.
func (d *Draft) Title() string {
	if d.SelectedTitle < 0 || d.SelectedTitle >= len(d.TitleCandidates) {
		return ""
	}
	return d.TitleCandidates[d.SelectedTitle].Title
}
