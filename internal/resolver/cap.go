package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/flipline/crosslister/internal/llm"
)

const capAttempts = 2

// CapValue enforces the field length limit on an already-resolved value.
// A naive mid-word truncation is unacceptable for buyer-facing values, so the
// order is: regenerate shorter via the collaborator, then greedily keep whole
// words, and only as a last resort hard-slice.
func (r *Resolver) CapValue(ctx context.Context, field, value string, pc ProductContext) string {
	if len([]rune(value)) <= MaxValueLength {
		return value
	}

	for attempt := 0; attempt < capAttempts; attempt++ {
		if err := r.pacer.Wait(ctx); err != nil {
			break
		}

		answer, err := r.llm.Query(ctx, llm.Request{Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You shorten marketplace listing field values without losing meaning."},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Rewrite this %q value in at most %d characters. Answer with the value only.\n\n%s",
				field, MaxValueLength, value)},
		}})
		if err != nil {
			r.logger.Warn("regeneration attempt failed", "field", field, "attempt", attempt+1, "error", err)
			continue
		}

		answer = strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `"`))
		if answer != "" && !isErrorSentinel(answer) && len([]rune(answer)) <= MaxValueLength {
			return answer
		}
	}

	if capped, ok := capAtWordBoundary(value, MaxValueLength); ok {
		return capped
	}

	// Even the first word exceeds the limit. This should never surface to a
	// buyer; log it for diagnosis and slice.
	r.logger.Error("length constraint violation, hard-slicing value",
		"field", field, "length", len([]rune(value)))
	return string([]rune(value)[:MaxValueLength])
}

// capAtWordBoundary greedily keeps whole words up to limit characters.
func capAtWordBoundary(value string, limit int) (string, bool) {
	words := strings.Fields(value)
	var kept []string
	length := 0
	for _, word := range words {
		next := length + len([]rune(word))
		if len(kept) > 0 {
			next++ // joining space
		}
		if next > limit {
			break
		}
		kept = append(kept, word)
		length = next
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, " "), true
}
