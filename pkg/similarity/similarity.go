// Package similarity holds the similarity primitives shared by the clusterer,
// the topology manager and the cross-cluster analyzer.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

var nameStopWords = map[string]bool{
	"the": true, "and": true, "of": true, "for": true, "to": true, "in": true,
	"on": true, "an": true, "a": true, "my": true, "with": true, "by": true,
}

// Tokenize lowercases a name and splits it on anything that is not a letter
// or digit. Stopwords and single-character tokens are dropped.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || nameStopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// TokenJaccard returns |A∩B| / |A∪B| over the name tokens of a and b.
// Two names without any usable token are treated as unrelated.
func TokenJaccard(a, b string) float64 {
	aSet := tokenSet(a)
	bSet := tokenSet(b)
	if len(aSet) == 0 || len(bSet) == 0 {
		return 0
	}
	inter := 0
	for t := range aSet {
		if _, ok := bSet[t]; ok {
			inter++
		}
	}
	union := len(aSet) + len(bSet) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// CommonTokens returns the tokens shared by every name, in the order they
// appear in the first name.
func CommonTokens(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, name := range names {
		for t := range tokenSet(name) {
			counts[t]++
		}
	}
	common := make([]string, 0)
	seen := make(map[string]bool)
	for _, t := range Tokenize(names[0]) {
		if counts[t] == len(names) && !seen[t] {
			common = append(common, t)
			seen[t] = true
		}
	}
	return common
}

// TitleCase upper-cases the first letter of every token and joins them with
// single spaces.
func TitleCase(tokens []string) string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		r := []rune(t)
		r[0] = unicode.ToUpper(r[0])
		out = append(out, string(r))
	}
	return strings.Join(out, " ")
}

// SquaredDistance returns the squared Euclidean distance. Vectors must have
// the same length.
func SquaredDistance(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// EuclideanDistance returns the Euclidean distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	return math.Sqrt(SquaredDistance(a, b))
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Mean returns the elementwise mean of vectors, all of which must share the
// length of the first one. Returns nil for an empty input.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim; i++ {
			sum[i] += float64(v[i])
		}
	}
	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i := range sum {
		mean[i] = float32(sum[i] / n)
	}
	return mean
}

// HarmonicMean of strictly positive values; any non-positive value yields 0.
func HarmonicMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	denom := 0.0
	for _, v := range values {
		if v <= 0 {
			return 0
		}
		denom += 1 / v
	}
	return float64(len(values)) / denom
}
