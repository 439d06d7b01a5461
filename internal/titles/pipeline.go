package titles

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flipline/crosslister/internal/llm"
	"github.com/flipline/crosslister/internal/models"
)

const (
	maxTitleLength    = 80
	titlesPerRound    = 5
	sourceMarketplace = "amazon"
)

// Pipeline derives and ranks listing title candidates from a source title.
type Pipeline struct {
	llm    llm.Client
	logger *slog.Logger
}

func NewPipeline(client llm.Client, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		llm:    client,
		logger: logger.With("component", "title_pipeline"),
	}
}

// Result is the grown candidate sequence plus the auto-selected index. The
// selection is advisory; a user may override it after generation.
type Result struct {
	Candidates []models.TitleCandidate
	Selected   int
}

// Generate seeds the candidate sequence with the actual source title, appends
// brand-filtered variants, and runs up to two marketing rounds per filtered
// variant against the text-generation collaborator. Provider failures degrade
// to fewer candidates and never fail the pipeline.
func (p *Pipeline) Generate(ctx context.Context, sourceTitle, primaryBrand string, denylist []string) Result {
	result := Result{Selected: 0}
	result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidateActual, sourceTitle))

	filtered := StripBrand(sourceTitle, primaryBrand)
	if filtered != "" && filtered != sourceTitle {
		result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidateFiltered, filtered))
	}

	noBrand := StripAllKnownBrands(sourceTitle, primaryBrand, denylist)
	if noBrand != "" && noBrand != sourceTitle && noBrand != filtered {
		result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidateFilteredNoBrand, noBrand))
	}

	if filtered == "" {
		filtered = sourceTitle
	}

	great := p.marketingRound(ctx, filtered, nil)
	for _, title := range great {
		result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidateGreat, title))
	}

	perfect := p.marketingRound(ctx, filtered, great)
	for i, title := range perfect {
		result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidatePerfect, title))
		if i == 0 {
			result.Selected = len(result.Candidates) - 1
		}
	}

	if noBrand != "" && noBrand != filtered {
		greatNB := p.marketingRound(ctx, noBrand, nil)
		for _, title := range greatNB {
			result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidateGreatNoBrand, title))
		}

		perfectNB := p.marketingRound(ctx, noBrand, greatNB)
		for i, title := range perfectNB {
			result.Candidates = append(result.Candidates, models.NewTitleCandidate(models.CandidatePerfectNoBrand, title))
			if len(perfect) == 0 && i == 0 {
				result.Selected = len(result.Candidates) - 1
			}
		}
	}

	return result
}

// marketingRound asks for up to five optimized variants of base. When prior
// round output exists it is passed back as conversation context so the second
// round refines rather than restarts.
func (p *Pipeline) marketingRound(ctx context.Context, base string, prior []string) []string {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You write concise, high-converting marketplace listing titles."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Write up to %d improved listing titles for this product, one per line. "+
				"Each title must be at most %d characters and must not mention any marketplace name.\n\nProduct: %s",
			titlesPerRound, maxTitleLength, base)},
	}
	if len(prior) > 0 {
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: strings.Join(prior, "\n")},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Now perfect these: make each title sharper and more specific, one per line, "+
					"still at most %d characters, no marketplace names.", maxTitleLength)},
		)
	}

	answer, err := p.llm.Query(ctx, llm.Request{Messages: messages})
	if err != nil {
		p.logger.Warn("marketing round failed", "error", err)
		return nil
	}

	return filterTitles(parseLines(answer))
}

var linePrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

func parseLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(linePrefix.ReplaceAllString(line, ""))
		line = strings.Trim(line, `"`)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// filterTitles drops over-long titles and any that name the source
// marketplace, keeping at most one round's worth.
func filterTitles(lines []string) []string {
	var kept []string
	for _, line := range lines {
		if len([]rune(line)) > maxTitleLength {
			continue
		}
		if strings.Contains(strings.ToLower(line), sourceMarketplace) {
			continue
		}
		kept = append(kept, line)
		if len(kept) == titlesPerRound {
			break
		}
	}
	return kept
}
