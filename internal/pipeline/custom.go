package pipeline

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// customProvider is the final, always-available summarisation fallback
// (§4.7): a deterministic extractive summary with no external dependency.
// It does not implement transcription.
type customProvider struct{}

func newCustomProvider() *customProvider { return &customProvider{} }

func (customProvider) Name() string { return "custom" }

func (customProvider) Transcribe(ctx context.Context, path, language string) (TranscriptionResult, error) {
	return TranscriptionResult{}, errTranscriptionUnsupported{provider: "custom"}
}

var sentenceSplitter = regexp.MustCompile(`[.!?]+`)

// minSentenceLength excludes fragments too short to carry meaning (§4.7).
const minSentenceLength = 10

// Summarise splits text into sentences, keeps the ones long enough to
// matter, and stitches together a summary from the opening and closing
// portion of the talk: the first ceil(N*0.3)/2 sentences (rounded up, so
// any non-empty text yields at least one) plus the last floor(N*0.3)/2
// (rounded down), joined by ". ".
func (customProvider) Summarise(ctx context.Context, text, language string, hints SummaryHints) (SummaryResult, error) {
	sentences := splitSentences(text)

	n := len(sentences)
	headCount := int(math.Ceil(math.Ceil(float64(n)*0.3) / 2))
	tailCount := int(math.Floor(float64(n)*0.3) / 2)

	var picked []string
	picked = append(picked, sentences[:min(headCount, n)]...)
	if tailCount > 0 && n > 0 {
		start := n - tailCount
		if start < headCount {
			start = headCount
		}
		picked = append(picked, sentences[start:]...)
	}

	return SummaryResult{
		Source:      "custom",
		Summary:     strings.Join(picked, ". "),
		KeyPoints:   matchKeywords(sentences, keyPointPatterns, 5),
		ActionItems: matchKeywords(sentences, actionItemPatterns, 3),
		Decisions:   matchKeywords(sentences, decisionPatterns, 3),
		Topics:      matchKeywords(sentences, topicPatterns, 5),
	}, nil
}

// splitSentences splits text on [.!?]+ and discards fragments of length<=10.
func splitSentences(text string) []string {
	raw := sentenceSplitter.Split(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) > minSentenceLength {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// Keyword regex sets used to derive the structured fields of the custom
// summary. Localising these for languages other than English is future
// work; they are applied regardless of the configured language since the
// custom provider has no translation capability of its own.
var (
	keyPointPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(important|key|main|significant|notable)\b`),
		regexp.MustCompile(`(?i)\b(highlight|summary|overview)\b`),
	}
	actionItemPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(will|need to|should|must|going to)\b`),
		regexp.MustCompile(`(?i)\b(action item|follow[- ]?up|todo|task)\b`),
	}
	decisionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(decided|agree(d)?|approved|resolved|concluded)\b`),
	}
	topicPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(regarding|about|topic|discuss(ed|ing)?|re:)\b`),
	}
)

// matchKeywords returns, in order, up to cap sentences matching any pattern
// in the given set.
func matchKeywords(sentences []string, patterns []*regexp.Regexp, cap int) []string {
	var out []string
	for _, s := range sentences {
		if len(out) >= cap {
			break
		}
		for _, p := range patterns {
			if p.MatchString(s) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
