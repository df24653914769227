package similarity

import "math"

// ngramCounts returns the term frequencies of every character n-gram of
// length minN..maxN in text. Texts shorter than n contribute no n-grams of
// that length.
func ngramCounts(text []rune, minN, maxN int) map[string]int {
	counts := make(map[string]int)
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(text); i++ {
			counts[string(text[i:i+n])]++
		}
	}
	return counts
}

// tfidfSpace is a TF-IDF vector space fitted over a fixed corpus of
// documents. Index 0 is always the subject.
type tfidfSpace struct {
	vectors []map[string]float64
}

// newTFIDFSpace fits the space over docs using smoothed inverse document
// frequency, idf(t) = ln((1+n)/(1+df(t))) + 1, and L2-normalizes every
// document vector.
func newTFIDFSpace(docs [][]rune, minN, maxN int) *tfidfSpace {
	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		counts[i] = ngramCounts(doc, minN, maxN)
		for term := range counts[i] {
			df[term]++
		}
	}

	n := float64(len(docs))
	vectors := make([]map[string]float64, len(docs))
	for i, tf := range counts {
		vec := make(map[string]float64, len(tf))
		var norm float64
		for term, c := range tf {
			idf := math.Log((1+n)/(1+float64(df[term]))) + 1
			w := float64(c) * idf
			vec[term] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for term := range vec {
				vec[term] /= norm
			}
		}
		vectors[i] = vec
	}

	return &tfidfSpace{vectors: vectors}
}

// cosine returns the cosine similarity between documents i and j, clamped to
// [0,1]. A document without n-grams has similarity 0 with everything.
func (s *tfidfSpace) cosine(i, j int) float64 {
	a, b := s.vectors[i], s.vectors[j]
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	return clamp01(dot)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
