package models

import (
	"time"
)

// SourceListing is a scraped marketplace product. Instances are immutable
// once captured; a fresh scrape pass produces a new instance.
type SourceListing struct {
	SourceID        string         `json:"source_id"` // ASIN or eBay item number
	Marketplace     string         `json:"marketplace"`
	URL             string         `json:"url"`
	Title           string         `json:"title"`
	Brand           string         `json:"brand,omitempty"`
	SourcePriceRaw  string         `json:"source_price_raw"`
	DescriptionHTML string         `json:"description_html,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	Images          []string       `json:"images,omitempty"`
	ScrapedAt       time.Time      `json:"scraped_at"`
}

func NewSourceListing(sourceID, marketplace string) *SourceListing {
	return &SourceListing{
		SourceID:    sourceID,
		Marketplace: marketplace,
		Attributes:  make(map[string]any),
		Images:      make([]string, 0),
		ScrapedAt:   time.Now(),
	}
}

// AttributeSet maps marketplace form field names (case-sensitive) to resolved
// values. It is built incrementally within a single listing-submission
// attempt and discarded afterwards.
type AttributeSet map[string]string

// Put inserts a resolved value unless the field is already set. A field is
// never overwritten within one resolution pass.
func (a AttributeSet) Put(field, value string) bool {
	if _, exists := a[field]; exists {
		return false
	}
	a[field] = value
	return true
}

// BulletSet holds the three generated marketing lists. Lists may be shorter
// than their targets when generation under-fills; callers must not assume
// exact sizes.
type BulletSet struct {
	Features  []string `json:"features"`
	Benefits  []string `json:"benefits"`
	WhyChoose []string `json:"why_choose"`
}

// CandidateType labels how a title candidate was produced.
type CandidateType string

const (
	CandidateActual          CandidateType = "Actual"
	CandidateFiltered        CandidateType = "Filtered"
	CandidateFilteredNoBrand CandidateType = "FilteredNoBrand"
	CandidateGreat           CandidateType = "Great"
	CandidatePerfect         CandidateType = "Perfect"
	CandidateGreatNoBrand    CandidateType = "GreatNoBrand"
	CandidatePerfectNoBrand  CandidateType = "PerfectNoBrand"
)

// TitleCandidate is one entry in the growing candidate sequence. Earlier
// entries are never removed or mutated; the selected title is a separate
// pointer into the sequence, not a property of any candidate.
type TitleCandidate struct {
	Type       CandidateType `json:"type"`
	Title      string        `json:"title"`
	Characters int           `json:"characters"`
}

func NewTitleCandidate(candidateType CandidateType, title string) TitleCandidate {
	return TitleCandidate{
		Type:       candidateType,
		Title:      title,
		Characters: len([]rune(title)),
	}
}
