package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flipline/crosslister/internal/llm"
	"github.com/flipline/crosslister/internal/ratelimit"
)

const (
	// MaxValueLength is the hard limit for constrained marketplace form
	// fields. Description-style fields are capped elsewhere.
	MaxValueLength = 60

	externalAttempts = 3

	// NotApplicable is the terminal fallback value for fields with no
	// field-specific default.
	NotApplicable = "Does Not Apply"
)

// Source records which strategy produced a field value.
type Source string

const (
	SourceExplicit  Source = "explicit"
	SourceHeuristic Source = "heuristic"
	SourceGenerated Source = "generated"
	SourceDefault   Source = "default"
)

// Resolution is the outcome for a single field. Resolution never fails:
// every field resolves to something, the default table is always reachable.
type Resolution struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Source Source `json:"source"`
}

// ProductContext is the immutable product information available to a single
// resolution pass.
type ProductContext struct {
	Title       string
	Description string
	Attributes  map[string]any
	SourceID    string
}

// Resolver obtains values for required listing fields through an ordered
// fallback chain: explicit data, heuristic extraction, external generation,
// then a field-keyed default.
type Resolver struct {
	llm    llm.Client
	pacer  *ratelimit.Pacer
	logger *slog.Logger
	now    func() time.Time
}

func New(client llm.Client, pacer *ratelimit.Pacer, logger *slog.Logger) *Resolver {
	return &Resolver{
		llm:    client,
		pacer:  pacer,
		logger: logger.With("component", "field_resolver"),
		now:    time.Now,
	}
}

// Resolve runs the fallback chain for one field. The returned value is
// length-capped; see CapValue for the regenerate-before-truncate contract.
func (r *Resolver) Resolve(ctx context.Context, field string, pc ProductContext) Resolution {
	if value, ok := r.tryExplicit(field, pc); ok {
		return r.capped(ctx, Resolution{Field: field, Value: value, Source: SourceExplicit}, pc)
	}
	if value, ok := tryHeuristic(field, pc.Title); ok {
		return r.capped(ctx, Resolution{Field: field, Value: value, Source: SourceHeuristic}, pc)
	}
	if value, ok := r.tryExternal(ctx, field, pc); ok {
		return Resolution{Field: field, Value: value, Source: SourceGenerated}
	}
	return Resolution{Field: field, Value: r.defaultFor(field, pc), Source: SourceDefault}
}

func (r *Resolver) capped(ctx context.Context, res Resolution, pc ProductContext) Resolution {
	res.Value = r.CapValue(ctx, res.Field, res.Value, pc)
	return res
}

// tryExplicit consults the pre-extracted attribute map. Strings pass through,
// booleans map to Yes/No, arrays contribute the first three words of their
// shortest entry.
func (r *Resolver) tryExplicit(field string, pc ProductContext) (string, bool) {
	raw, ok := pc.Attributes[field]
	if !ok {
		return "", false
	}

	switch v := raw.(type) {
	case string:
		value := strings.TrimSpace(v)
		return value, value != ""
	case bool:
		if v {
			return "Yes", true
		}
		return "No", true
	case []string:
		return shortestEntry(v)
	case []any:
		var entries []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				entries = append(entries, s)
			}
		}
		return shortestEntry(entries)
	}
	return "", false
}

func shortestEntry(entries []string) (string, bool) {
	var nonEmpty []string
	for _, e := range entries {
		if strings.TrimSpace(e) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(e))
		}
	}
	if len(nonEmpty) == 0 {
		return "", false
	}

	sort.SliceStable(nonEmpty, func(i, j int) bool {
		return len(nonEmpty[i]) < len(nonEmpty[j])
	})

	words := strings.Fields(nonEmpty[0])
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " "), true
}

// Title noise stripped by the game-name heuristic: platform names, condition
// words, and parenthetical suffixes.
var (
	titleNoise = []string{
		"PlayStation 5", "PlayStation 4", "PlayStation 3", "PS5", "PS4", "PS3",
		"Xbox Series X", "Xbox Series S", "Xbox One", "Xbox 360",
		"Nintendo Switch", "Nintendo Wii U", "Nintendo Wii", "Nintendo DS", "Nintendo 3DS",
		"Brand New", "Factory Sealed", "Sealed", "New", "Used", "Complete", "CIB",
	}

	heuristicFields = []string{"game name", "game title"}
)

// tryHeuristic derives a value from the product title for a small set of
// well-known field names. The stripped residue must be longer than five
// characters to count.
func tryHeuristic(field, title string) (string, bool) {
	lower := strings.ToLower(field)
	known := false
	for _, pattern := range heuristicFields {
		if strings.Contains(lower, pattern) {
			known = true
			break
		}
	}
	if !known {
		return "", false
	}

	value := stripParentheticals(title)
	for _, noise := range titleNoise {
		value = removeWord(value, noise)
	}
	value = strings.Trim(value, " -–:,")
	value = strings.Join(strings.Fields(value), " ")

	if len(value) > 5 {
		return value, true
	}
	return "", false
}

func stripParentheticals(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func removeWord(s, word string) string {
	lower := strings.ToLower(s)
	target := strings.ToLower(word)
	for {
		idx := strings.Index(lower, target)
		if idx < 0 {
			return s
		}
		s = s[:idx] + s[idx+len(word):]
		lower = lower[:idx] + lower[idx+len(target):]
	}
}

// Sentinel phrases marking a rejected or useless generation.
var errorSentinels = []string{
	"i'm sorry",
	"i am sorry",
	"as an ai",
	"i cannot",
	"i can't",
	"unable to",
	"i don't know",
}

func isErrorSentinel(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range errorSentinels {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// tryExternal queries the text-generation collaborator up to three times with
// escalating prompt specificity. The length limit is enforced by prompt, not
// truncation: an over-long answer is a failed attempt, not raw material.
func (r *Resolver) tryExternal(ctx context.Context, field string, pc ProductContext) (string, bool) {
	prompts := []string{
		fmt.Sprintf("What is the %q of this product? Answer with the value only.", field),
		fmt.Sprintf("What is the %q of this product? Answer with the value only, in at most %d characters.", field, MaxValueLength),
		fmt.Sprintf("What is the %q of this product? Answer with the value only, in at most %d characters. Reply %q if you do not know.", field, MaxValueLength, NotApplicable),
	}

	for attempt := 0; attempt < externalAttempts; attempt++ {
		if err := r.pacer.Wait(ctx); err != nil {
			return "", false
		}

		answer, err := r.llm.Query(ctx, llm.Request{Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You extract structured product attributes for marketplace listings."},
			{Role: llm.RoleUser, Content: prompts[attempt] + "\n\n" + pc.promptContext()},
		}})
		if err != nil {
			r.logger.Warn("external resolution attempt failed",
				"field", field, "attempt", attempt+1, "error", err)
			continue
		}

		answer = strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `"`))
		if answer == "" || isErrorSentinel(answer) || len([]rune(answer)) > MaxValueLength {
			continue
		}
		return answer, true
	}
	return "", false
}

func (pc ProductContext) promptContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", pc.Title)
	if pc.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", pc.Description)
	}
	for key, value := range pc.Attributes {
		if s, ok := value.(string); ok {
			fmt.Fprintf(&b, "%s: %s\n", key, s)
		}
	}
	return b.String()
}

// defaultFor is the terminal state of the chain; it always yields a value.
func (r *Resolver) defaultFor(field string, pc ProductContext) string {
	lower := strings.ToLower(field)
	switch {
	case strings.Contains(lower, "region"):
		return "PAL"
	case strings.Contains(lower, "year"), strings.Contains(lower, "release"):
		return strconv.Itoa(r.now().Year())
	case strings.Contains(lower, "model"), strings.Contains(lower, "mpn"):
		if pc.SourceID != "" {
			return pc.SourceID
		}
		return NotApplicable
	case strings.Contains(lower, "quantity"), strings.Contains(lower, "unit"):
		return "1"
	default:
		return NotApplicable
	}
}
