package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"q1", "report"}, Tokenize("Q1 Report"))
	assert.Equal(t, []string{"finance", "budget", "2024"}, Tokenize("The Finance-Budget (2024)"))
	assert.Empty(t, Tokenize("a & b"))
}

func TestTokenJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Finance Budget", "finance budget", 1},
		{"one shared of three", "Finance Budget", "Finance Audit", 1.0 / 3.0},
		{"disjoint", "Finance Budget", "Legal Contracts", 0},
		{"empty side", "", "Legal", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenJaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCommonTokens(t *testing.T) {
	assert.Equal(t, []string{"finance"}, CommonTokens([]string{"Finance Budget", "Finance Audit", "2024 finance"}))
	assert.Empty(t, CommonTokens([]string{"Finance", "Legal"}))
	assert.Nil(t, CommonTokens(nil))
	assert.Equal(t, "Finance Audit", TitleCase([]string{"finance", "audit"}))
}

func TestVectorMath(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 2.0, SquaredDistance(a, b), 1e-9)
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	assert.Equal(t, 0.0, Cosine(a, []float32{1, 0, 0}))
	assert.Equal(t, []float32{0.5, 0.5}, Mean([][]float32{a, b}))
	assert.Nil(t, Mean(nil))
}

func TestHarmonicMean(t *testing.T) {
	assert.InDelta(t, 0.8, HarmonicMean([]float64{0.8, 0.8}), 1e-9)
	assert.InDelta(t, 2.0/(1/0.9+1/0.6), HarmonicMean([]float64{0.9, 0.6}), 1e-9)
	assert.Equal(t, 0.0, HarmonicMean([]float64{0.5, 0}))
	assert.Equal(t, 0.0, HarmonicMean(nil))
}
