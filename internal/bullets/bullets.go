package bullets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/flipline/crosslister/internal/llm"
	"github.com/flipline/crosslister/internal/models"
	"github.com/flipline/crosslister/internal/ratelimit"
	"github.com/flipline/crosslister/internal/resolver"
)

const (
	// Target list sizes. Finalized sets may be shorter when generation
	// under-fills even after the single retry round.
	FeaturesTarget  = 7
	BenefitsTarget  = 7
	WhyChooseTarget = 8

	maxBulletLength = 60
)

// bulletSchema constrains the structured generation call.
var bulletSchema = json.RawMessage(`{
	"name": "bullet_set",
	"schema": {
		"type": "object",
		"properties": {
			"features":   {"type": "array", "items": {"type": "string"}},
			"benefits":   {"type": "array", "items": {"type": "string"}},
			"why_choose": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["features", "benefits", "why_choose"]
	}
}`)

type bulletPayload struct {
	Features  []string `json:"features"`
	Benefits  []string `json:"benefits"`
	WhyChoose []string `json:"why_choose"`
}

// Generator produces the three marketing bullet lists for a listing.
type Generator struct {
	llm    llm.Client
	pacer  *ratelimit.Pacer
	logger *slog.Logger
}

func NewGenerator(client llm.Client, pacer *ratelimit.Pacer, logger *slog.Logger) *Generator {
	return &Generator{
		llm:    client,
		pacer:  pacer,
		logger: logger.With("component", "bullet_generator"),
	}
}

// Generate requests the full bullet set in one structured call, then issues
// at most one follow-up round when any list falls short after filtering. The
// follow-up passes already-accepted entries as an explicit exclusion list.
// Provider failures degrade to shorter (possibly empty) lists.
func (g *Generator) Generate(ctx context.Context, pc resolver.ProductContext) models.BulletSet {
	set := models.BulletSet{}

	first, err := g.round(ctx, pc, nil)
	if err != nil {
		g.logger.Warn("bullet generation round failed", "error", err)
		return set
	}
	set = mergeBulletSet(set, first)

	if len(set.Features) >= FeaturesTarget &&
		len(set.Benefits) >= BenefitsTarget &&
		len(set.WhyChoose) >= WhyChooseTarget {
		return truncateToTargets(set)
	}

	var accepted []string
	accepted = append(accepted, set.Features...)
	accepted = append(accepted, set.Benefits...)
	accepted = append(accepted, set.WhyChoose...)

	second, err := g.round(ctx, pc, accepted)
	if err != nil {
		g.logger.Warn("bullet retry round failed", "error", err)
		return truncateToTargets(set)
	}
	set = mergeBulletSet(set, second)

	return truncateToTargets(set)
}

func (g *Generator) round(ctx context.Context, pc resolver.ProductContext, exclude []string) (*bulletPayload, error) {
	if err := g.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Write marketing bullets for this product as JSON with keys "+
			"\"features\" (%d entries), \"benefits\" (%d entries) and \"why_choose\" (%d entries). "+
			"Each bullet must be at most %d characters. No generic filler, no duplicate ideas.\n\nTitle: %s\n",
		FeaturesTarget, BenefitsTarget, WhyChooseTarget, maxBulletLength, pc.Title)
	if pc.Description != "" {
		prompt += "Description: " + pc.Description + "\n"
	}
	if len(exclude) > 0 {
		prompt += "\nAvoid these ideas, they are already used:\n" + strings.Join(exclude, "\n")
	}

	answer, err := g.llm.Query(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You write tight, specific marketplace listing copy."},
			{Role: llm.RoleUser, Content: prompt},
		},
		ResponseSchema: bulletSchema,
	})
	if err != nil {
		return nil, err
	}

	var payload bulletPayload
	if err := json.Unmarshal([]byte(answer), &payload); err != nil {
		return nil, fmt.Errorf("unparseable bullet payload: %w", err)
	}
	return &payload, nil
}

// mergeBulletSet folds a round's output into the accumulated set, filtering
// over-long entries and deduplicating within each list independently.
func mergeBulletSet(set models.BulletSet, payload *bulletPayload) models.BulletSet {
	set.Features = mergeList(set.Features, payload.Features)
	set.Benefits = mergeList(set.Benefits, payload.Benefits)
	set.WhyChoose = mergeList(set.WhyChoose, payload.WhyChoose)
	return set
}

func mergeList(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		seen[normalizeBullet(entry)] = struct{}{}
	}

	for _, entry := range incoming {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// Over-long bullets are dropped outright: a cut bullet reads as
		// broken copy.
		if len([]rune(entry)) > maxBulletLength {
			continue
		}
		key := normalizeBullet(entry)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, entry)
	}
	return existing
}

// normalizeBullet is the duplicate-detection key: lower-cased, punctuation
// stripped, whitespace collapsed.
func normalizeBullet(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncateToTargets(set models.BulletSet) models.BulletSet {
	if len(set.Features) > FeaturesTarget {
		set.Features = set.Features[:FeaturesTarget]
	}
	if len(set.Benefits) > BenefitsTarget {
		set.Benefits = set.Benefits[:BenefitsTarget]
	}
	if len(set.WhyChoose) > WhyChooseTarget {
		set.WhyChoose = set.WhyChoose[:WhyChooseTarget]
	}
	return set
}
