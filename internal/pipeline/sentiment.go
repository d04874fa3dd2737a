package pipeline

import "strings"

// Sentiment is scored from a small lexicon of sports-news tone words.
// Coarse by design of the consumer: search only buckets scores into
// positive (>= 0.1), negative (<= -0.1), and neutral.
var positiveWords = map[string]struct{}{
	"win": {}, "won": {}, "wins": {}, "victory": {}, "triumph": {},
	"great": {}, "brilliant": {}, "stunning": {}, "superb": {}, "excellent": {},
	"success": {}, "successful": {}, "dominant": {}, "commanding": {},
	"impressive": {}, "delight": {}, "delighted": {}, "celebrate": {},
	"celebrates": {}, "hero": {}, "heroic": {}, "record": {}, "best": {},
	"strong": {}, "comeback": {}, "promoted": {}, "promotion": {}, "champion": {},
	"champions": {}, "title": {}, "glory": {}, "boost": {}, "signed": {},
}

var negativeWords = map[string]struct{}{
	"loss": {}, "lost": {}, "lose": {}, "loses": {}, "defeat": {}, "defeated": {},
	"crisis": {}, "injury": {}, "injured": {}, "blow": {}, "worst": {},
	"poor": {}, "terrible": {}, "disaster": {}, "disastrous": {}, "sacked": {},
	"relegated": {}, "relegation": {}, "struggle": {}, "struggling": {},
	"collapse": {}, "fail": {}, "failed": {}, "failure": {}, "ban": {},
	"banned": {}, "fined": {}, "suspended": {}, "controversy": {}, "slump": {},
	"humiliated": {}, "humiliating": {}, "crushed": {}, "weak": {},
}

// scoreSentiment returns a sentiment score in [-1, 1] for the given text.
// Zero means neutral or no tone words found.
func scoreSentiment(text string) float64 {
	var positive, negative int
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"()[]")
		if _, ok := positiveWords[word]; ok {
			positive++
		}
		if _, ok := negativeWords[word]; ok {
			negative++
		}
	}

	total := positive + negative
	if total == 0 {
		return 0
	}
	return float64(positive-negative) / float64(total)
}
