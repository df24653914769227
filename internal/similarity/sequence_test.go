package similarity

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want []match
	}{
		{name: "empty", a: "", b: "abc", want: []match{}},
		{name: "disjoint", a: "abc", b: "xyz", want: []match{}},
		{name: "identical", a: "abcd", b: "abcd", want: []match{{0, 0, 4}}},
		{name: "insertion", a: "abxcd", b: "abcd", want: []match{{0, 0, 2}, {3, 2, 2}}},
		{name: "earliest tie", a: "ab", b: "abab", want: []match{{0, 0, 2}}},
		{name: "both sides", a: "qabxcd", b: "abycdf", want: []match{{1, 0, 2}, {4, 3, 2}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newSequenceMatcher([]rune(tc.a), []rune(tc.b)).matchingBlocks(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// longestCommonRun is the quadratic reference for longestMatch.
func longestCommonRun(a, b []rune, alo, ahi, blo, bhi int) match {
	best := match{A: alo, B: blo}
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			k := 0
			for i+k < ahi && j+k < bhi && a[i+k] == b[j+k] {
				k++
			}
			if k > best.Size {
				best = match{A: i, B: j, Size: k}
			}
		}
	}
	return best
}

func randomRunes(rng *rand.Rand, n int, alphabet string) []rune {
	out := make([]rune, n)
	for i := range out {
		out[i] = rune(alphabet[rng.Intn(len(alphabet))])
	}
	return out
}

func TestLongestMatch_AgreesWithReference(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()
	for round := 0; round < 200; round++ {
		a := randomRunes(rng, 1+rng.Intn(40), "abc")
		b := randomRunes(rng, 1+rng.Intn(40), "abc")
		m := newSequenceMatcher(a, b)

		// Several calls on one matcher also cover the row reset.
		for call := 0; call < 4; call++ {
			alo := rng.Intn(len(a))
			ahi := alo + rng.Intn(len(a)-alo+1)
			blo := rng.Intn(len(b))
			bhi := blo + rng.Intn(len(b)-blo+1)

			want := longestCommonRun(a, b, alo, ahi, blo, bhi)
			got, err := m.longestMatch(ctx, alo, ahi, blo, bhi)
			require.NoError(t, err)
			require.Equal(t, want, got, "a=%q b=%q range=[%d:%d] [%d:%d]",
				string(a), string(b), alo, ahi, blo, bhi)
		}
		assert.Empty(t, m.prevSet)
		assert.Empty(t, m.curSet)
	}
}

func TestLongestMatch_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := []rune(strings.Repeat("a", 2*ctxCheckRows))
	m := newSequenceMatcher(text, text)
	_, err := m.longestMatch(ctx, 0, len(text), 0, len(text))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.prevSet)
	assert.Empty(t, m.curSet)
}

func TestAnalyzeContext_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(DefaultOptions())
	_, err := engine.AnalyzeContext(ctx, sharedSnippet, []Candidate{{ID: "c", Text: sharedSnippet}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeContext_SequenceCap(t *testing.T) {
	t.Parallel()

	prefix := "shared opening paragraph of the essay"
	subject := prefix + " then the subject wanders off somewhere"
	candidates := []Candidate{{ID: "c", Text: prefix + " while the candidate goes quite elsewhere"}}

	full, err := NewEngine(DefaultOptions()).AnalyzeContext(context.Background(), subject, candidates)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.MaxSequenceLength = len([]rune(prefix))
	capped, err := NewEngine(opts).AnalyzeContext(context.Background(), subject, candidates)
	require.NoError(t, err)

	assert.Equal(t, 1.0, capped.Similarities[0].Sequence)
	assert.Less(t, full.Similarities[0].Sequence, 1.0)
	assert.Equal(t, full.Similarities[0].Cosine, capped.Similarities[0].Cosine)
}

// essay builds deterministic prose from a small vocabulary, the worst case
// for the matcher since every rune recurs often.
func essay(rng *rand.Rand, size int) string {
	words := []string{"the", "a", "student", "answer", "is", "and", "of", "to", "in", "that", "data", "value"}
	var sb strings.Builder
	for sb.Len() < size {
		sb.WriteString(words[rng.Intn(len(words))])
		sb.WriteByte(' ')
	}
	return sb.String()
}

// rewrite copies text and replaces a fraction of its words.
func rewrite(rng *rand.Rand, text string, fraction float64) string {
	words := strings.Fields(text)
	for i := range words {
		if rng.Float64() < fraction {
			words[i] = "other"
		}
	}
	return strings.Join(words, " ")
}

func TestAnalyzeContext_LargeSubmissions(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	subject := essay(rng, 8<<10)
	candidates := []Candidate{
		{ID: "near", Text: rewrite(rng, subject, 0.1)},
		{ID: "half", Text: rewrite(rng, subject, 0.5)},
		{ID: "fresh", Text: essay(rng, 8<<10)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := NewEngine(DefaultOptions()).AnalyzeContext(ctx, subject, candidates)
	require.NoError(t, err)
	require.Len(t, report.Similarities, 3)
	assert.Greater(t, report.Similarities[0].Sequence, report.Similarities[1].Sequence)
}

func BenchmarkAnalyze(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	subject := essay(rng, 8<<10)
	candidates := []Candidate{
		{ID: "near", Text: rewrite(rng, subject, 0.1)},
		{ID: "fresh", Text: essay(rng, 8<<10)},
	}
	engine := NewEngine(DefaultOptions())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.AnalyzeContext(context.Background(), subject, candidates); err != nil {
			b.Fatal(err)
		}
	}
}
