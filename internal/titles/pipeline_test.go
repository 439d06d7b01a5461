package titles

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipline/crosslister/internal/llm"
	"github.com/flipline/crosslister/internal/models"
)

func TestPipelineGenerate(t *testing.T) {
	calls := 0
	client := llm.QueryFunc(func(ctx context.Context, req llm.Request) (string, error) {
		calls++
		last := req.Messages[len(req.Messages)-1].Content
		if strings.Contains(last, "perfect") {
			return "1. Pro Wireless Headphones Noise Cancelling\n2. Premium Over-Ear Headphones", nil
		}
		return "- Wireless Headphones with Noise Cancelling\n- Over-Ear Bluetooth Headphones", nil
	})

	pipeline := NewPipeline(client, slog.Default())
	result := pipeline.Generate(context.Background(),
		"Sony WH-1000XM4 Wireless Headphones", "Sony", []string{"Bose"})

	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, models.CandidateActual, result.Candidates[0].Type)
	assert.Equal(t, "Sony WH-1000XM4 Wireless Headphones", result.Candidates[0].Title)

	var types []models.CandidateType
	for _, c := range result.Candidates {
		types = append(types, c.Type)
	}
	assert.Contains(t, types, models.CandidateFiltered)
	assert.Contains(t, types, models.CandidateGreat)
	assert.Contains(t, types, models.CandidatePerfect)

	// Auto-selection points at the first Perfect-round title.
	selected := result.Candidates[result.Selected]
	assert.Equal(t, models.CandidatePerfect, selected.Type)
	assert.Equal(t, "Pro Wireless Headphones Noise Cancelling", selected.Title)
}

func TestPipelineDegradesOnProviderFailure(t *testing.T) {
	client := llm.QueryFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", &llm.ProviderError{Message: "unavailable"}
	})

	pipeline := NewPipeline(client, slog.Default())
	result := pipeline.Generate(context.Background(), "Sony Headphones", "Sony", nil)

	// Still have the seed and the filtered candidate, selection falls back
	// to the actual title.
	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, models.CandidateActual, result.Candidates[0].Type)
	assert.Equal(t, 0, result.Selected)
}

func TestPipelineRejectsOverlongAndMarketplaceTitles(t *testing.T) {
	overlong := strings.Repeat("Very Long Title ", 10)
	client := llm.QueryFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return overlong + "\nGreat Deal straight from Amazon\nClean Short Title", nil
	})

	pipeline := NewPipeline(client, slog.Default())
	result := pipeline.Generate(context.Background(), "Some Product", "", nil)

	for _, c := range result.Candidates {
		if c.Type == models.CandidateActual {
			continue
		}
		assert.LessOrEqual(t, c.Characters, maxTitleLength)
		assert.NotContains(t, strings.ToLower(c.Title), "amazon")
	}
}

func TestPipelineCandidateSequenceOnlyGrows(t *testing.T) {
	client := llm.QueryFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "Title A\nTitle B", nil
	})

	pipeline := NewPipeline(client, slog.Default())
	result := pipeline.Generate(context.Background(), "Acme Widget Deluxe", "Acme", nil)

	// The seed stays at position zero regardless of how many candidates are
	// appended afterwards.
	assert.Equal(t, models.CandidateActual, result.Candidates[0].Type)
	for _, c := range result.Candidates {
		assert.NotEmpty(t, c.Title)
		assert.Equal(t, len([]rune(c.Title)), c.Characters)
	}
}
