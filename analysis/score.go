package analysis

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// intensityThreshold flags a sample as heated once the heuristic score
// crosses it.
const intensityThreshold = 0.5

// analyzeText produces the result payload for one completed request.
// Language detection is real; the sentiment/toxicity numbers are cheap
// lexical heuristics meant as signals, not verdicts.
func analyzeText(kind, sample string) map[string]any {
	info := whatlanggo.Detect(sample)

	result := map[string]any{
		"language":     info.Lang.String(),
		"language_iso": info.Lang.Iso6391(),
		"confidence":   info.Confidence,
		"word_count":   len(strings.Fields(sample)),
	}

	switch kind {
	case "sentiment", "toxicity":
		score := intensityScore(sample)
		result["score"] = score
		result["flagged"] = score > intensityThreshold
	}
	return result
}

// intensityScore blends shouting (uppercase ratio) and exclamation
// density into a [0,1] value.
func intensityScore(sample string) float64 {
	if sample == "" {
		return 0
	}

	var letters, upper, bangs int
	for _, r := range sample {
		switch {
		case unicode.IsUpper(r):
			upper++
			letters++
		case unicode.IsLetter(r):
			letters++
		case r == '!' || r == '?':
			bangs++
		}
	}
	if letters == 0 {
		return 0
	}

	score := 0.7*float64(upper)/float64(letters) + 0.3*min(float64(bangs)/10.0, 1)
	return min(score, 1)
}
