package similarity

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sharedSnippet = "def compute_total(items): return sum(item.price * item.quantity for item in items)"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: " \n\t ", want: ""},
		{name: "collapse and lowercase", input: "Hello   \n\tWORLD", want: "hello world"},
		{name: "hash comment", input: "x = 1 # set x\ny = 2", want: "x = 1 y = 2"},
		{name: "slash comment", input: "a := b // note\nc := d", want: "a := b c := d"},
		{name: "block comment", input: "start /* multi\nline */ end", want: "start end"},
		{name: "two block comments", input: "/* a */ keep /* b */", want: "keep"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestAnalyze_NoCandidates(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	report := engine.Analyze("some submission text", nil)

	assert.Equal(t, 0.0, report.MaxScore)
	assert.Empty(t, report.Similarities)
	assert.NotNil(t, report.MatchedBlocks)
	assert.Empty(t, report.MatchedBlocks)
	assert.Equal(t, DefaultThreshold, report.Threshold)
	assert.Equal(t, []string{TechniqueCosine, TechniqueSequence}, report.TechniquesUsed)
	assert.False(t, report.Exceeds())
}

func TestAnalyze_IdenticalText(t *testing.T) {
	t.Parallel()

	text := "the quick brown fox jumps over the lazy dog"
	engine := NewEngine(DefaultOptions())
	report := engine.Analyze(text, []Candidate{{ID: "c1", Text: text}})

	require.Len(t, report.Similarities, 1)
	sim := report.Similarities[0]
	assert.Equal(t, "c1", sim.CandidateID)
	assert.InDelta(t, 1.0, sim.Cosine, 1e-9)
	assert.Equal(t, 1.0, sim.Sequence)
	assert.Equal(t, 1.0, sim.Combined)
	assert.Equal(t, 1.0, report.MaxScore)
	assert.Equal(t, "c1", report.MostSimilarID)
	assert.True(t, report.Exceeds())
	// 43 runes is below the default span length.
	assert.Empty(t, report.MatchedBlocks)
}

func TestAnalyze_IdenticalAfterNormalization(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	report := engine.Analyze("Hello   World // trailing", []Candidate{{ID: "c1", Text: "hello world"}})

	require.Len(t, report.Similarities, 1)
	assert.Equal(t, 1.0, report.Similarities[0].Combined)
}

func TestAnalyze_Dissimilar(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	report := engine.Analyze("alpha beta gamma", []Candidate{{ID: "c1", Text: "delta epsilon zeta"}})

	require.Len(t, report.Similarities, 1)
	sim := report.Similarities[0]
	assert.Less(t, sim.Cosine, 0.1)
	// Shared letters ("a", "ta ", ...) still give the sequence metric some signal.
	assert.InDelta(t, 12.0/34.0, sim.Sequence, 1e-9)
	assert.Equal(t, sim.Sequence, sim.Combined)
	assert.Less(t, report.MaxScore, DefaultThreshold)
	assert.False(t, report.Exceeds())
	assert.Empty(t, report.MatchedBlocks)
}

func TestAnalyze_MatchedBlocks(t *testing.T) {
	t.Parallel()

	subject := "# grading helper\n" + sharedSnippet + "\nprint(\"done\")"
	copied := "import math\n" + sharedSnippet + "  // copied\nvalue = 42"
	unrelated := "totally unrelated prose about medieval castles and moats"

	engine := NewEngine(DefaultOptions())
	report := engine.Analyze(subject, []Candidate{
		{ID: "copied", Text: copied},
		{ID: "unrelated", Text: unrelated},
	})

	require.Len(t, report.Similarities, 2)
	assert.Equal(t, "copied", report.Similarities[0].CandidateID)
	assert.Equal(t, "unrelated", report.Similarities[1].CandidateID)
	assert.InDelta(t, 112.0/134.0, report.Similarities[0].Sequence, 1e-9)
	assert.Greater(t, report.Similarities[0].Combined, report.Similarities[1].Combined)
	assert.Equal(t, "copied", report.MostSimilarID)
	assert.Equal(t, report.Similarities[0].Combined, report.MaxScore)
	assert.True(t, report.Exceeds())

	require.Len(t, report.MatchedBlocks, 1)
	block := report.MatchedBlocks[0]
	assert.Equal(t, sharedSnippet+" ", block.Content)
	assert.Equal(t, 0, block.SourceStart)
	assert.Equal(t, len(sharedSnippet)+1, block.SourceEnd)
	assert.Equal(t, len("import math "), block.MatchStart)
	assert.Equal(t, block.MatchStart+len(block.Content), block.MatchEnd)
	assert.Empty(t, report.Similarities[1].MatchedBlocks)
}

func TestAnalyze_MatchedBlocksRespectMinLength(t *testing.T) {
	t.Parallel()

	// A span of exactly MinBlockLength runes must not be reported.
	span := strings.Repeat("ab", 25)
	subject := "xyz " + span + " qqq"
	candidate := "123 " + span + " 999"

	engine := NewEngine(Options{MinBlockLength: 52})
	report := engine.Analyze(subject, []Candidate{{ID: "c", Text: candidate}})
	assert.Empty(t, report.MatchedBlocks)

	engine = NewEngine(Options{MinBlockLength: 20})
	report = engine.Analyze(subject, []Candidate{{ID: "c", Text: candidate}})
	require.NotEmpty(t, report.MatchedBlocks)
	for _, b := range report.MatchedBlocks {
		assert.Greater(t, len([]rune(b.Content)), 20)
		assert.Equal(t, b.SourceEnd-b.SourceStart, len([]rune(b.Content)))
	}
}

func TestAnalyze_TieKeepsFirstCandidate(t *testing.T) {
	t.Parallel()

	text := "identical submissions are suspicious"
	engine := NewEngine(DefaultOptions())
	report := engine.Analyze(text, []Candidate{
		{ID: "first", Text: text},
		{ID: "second", Text: text},
	})

	assert.Equal(t, "first", report.MostSimilarID)
	assert.Equal(t, 1.0, report.MaxScore)
}

func TestAnalyze_EmptySubject(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	report := engine.Analyze("   // only a comment", []Candidate{{ID: "c", Text: ""}})

	require.Len(t, report.Similarities, 1)
	assert.Equal(t, 0.0, report.Similarities[0].Combined)
	assert.Equal(t, 0.0, report.MaxScore)
}

func TestAnalyze_ScoresWithinUnitInterval(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	candidates := []Candidate{
		{ID: "a", Text: "for i in range(10): print(i)"},
		{ID: "b", Text: "while true { break }"},
		{ID: "c", Text: "ünïcödé text with àccents and emoji 🙂"},
		{ID: "d", Text: "x"},
	}
	report := engine.Analyze("for j in range(10): print(j) 🙂", candidates)

	require.Len(t, report.Similarities, len(candidates))
	for i, sim := range report.Similarities {
		assert.Equal(t, candidates[i].ID, sim.CandidateID)
		for _, score := range []float64{sim.Cosine, sim.Sequence, sim.Combined} {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
		assert.Equal(t, max(sim.Cosine, sim.Sequence), sim.Combined)
		assert.LessOrEqual(t, sim.Combined, report.MaxScore)
	}
}

func TestAnalyze_ConcurrentUse(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := engine.Analyze(sharedSnippet, []Candidate{{ID: "c", Text: sharedSnippet}})
			assert.Equal(t, 1.0, report.MaxScore)
		}()
	}
	wg.Wait()
}

func TestReport_JSONShape(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultOptions())
	data, err := json.Marshal(engine.Analyze("abc", nil))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []any{}, decoded["similarities"])
	assert.Equal(t, []any{}, decoded["matched_blocks"])
	assert.Equal(t, 0.75, decoded["threshold"])
	assert.NotContains(t, decoded, "most_similar_id")
}

func TestNewEngine_Defaults(t *testing.T) {
	t.Parallel()

	opts := NewEngine(Options{}).Options()
	assert.Equal(t, DefaultOptions(), opts)

	opts = NewEngine(Options{NGramMin: 6}).Options()
	assert.Equal(t, 6, opts.NGramMin)
	assert.Equal(t, 6, opts.NGramMax)
}
