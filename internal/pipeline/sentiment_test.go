package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreSentiment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want func(t *testing.T, score float64)
	}{
		{
			name: "positive match report",
			text: "City Win Derby: a great victory and a superb performance",
			want: func(t *testing.T, score float64) {
				assert.Greater(t, score, 0.0)
			},
		},
		{
			name: "negative injury news",
			text: "Striker injured in terrible defeat, club in crisis",
			want: func(t *testing.T, score float64) {
				assert.Less(t, score, 0.0)
			},
		},
		{
			name: "no tone words",
			text: "The fixture list for next season was published today",
			want: func(t *testing.T, score float64) {
				assert.Zero(t, score)
			},
		},
		{
			name: "mixed tone cancels out",
			text: "A great win after a terrible defeat last week",
			want: func(t *testing.T, score float64) {
				assert.GreaterOrEqual(t, score, -1.0)
				assert.LessOrEqual(t, score, 1.0)
			},
		},
		{
			name: "punctuation stripped",
			text: "Victory! Brilliant.",
			want: func(t *testing.T, score float64) {
				assert.Equal(t, 1.0, score)
			},
		},
		{
			name: "empty text",
			text: "",
			want: func(t *testing.T, score float64) {
				assert.Zero(t, score)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := scoreSentiment(tt.text)
			assert.GreaterOrEqual(t, score, -1.0)
			assert.LessOrEqual(t, score, 1.0)
			tt.want(t, score)
		})
	}
}
