package similarity

import "context"

// Default tuning values.
const (
	DefaultMinBlockLength    = 50
	DefaultThreshold         = 0.75
	DefaultNGramMin          = 3
	DefaultNGramMax          = 5
	DefaultMaxSequenceLength = 50000
)

// Names of the metrics reported in Report.TechniquesUsed.
const (
	TechniqueCosine   = "tfidf_cosine"
	TechniqueSequence = "sequence_matcher"
)

// Options tunes an Engine. Zero values fall back to the defaults above.
type Options struct {
	// MinBlockLength is the length a shared span must exceed to be reported.
	MinBlockLength int

	// Threshold is the alerting cutoff echoed in every report.
	Threshold float64

	// NGramMin and NGramMax bound the character n-gram sizes of the cosine metric.
	NGramMin int
	NGramMax int

	// MaxSequenceLength caps how many normalized runes of each text the
	// sequence metric compares. The cosine metric always sees the full text.
	MaxSequenceLength int
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		MinBlockLength:    DefaultMinBlockLength,
		Threshold:         DefaultThreshold,
		NGramMin:          DefaultNGramMin,
		NGramMax:          DefaultNGramMax,
		MaxSequenceLength: DefaultMaxSequenceLength,
	}
}

// Candidate is one text the subject is compared against.
type Candidate struct {
	ID   string
	Text string
}

// MatchedBlock is a contiguous span shared by the subject and a candidate.
// Offsets index runes of the normalized texts; ends are exclusive.
type MatchedBlock struct {
	SourceStart int    `json:"source_start"`
	SourceEnd   int    `json:"source_end"`
	MatchStart  int    `json:"match_start"`
	MatchEnd    int    `json:"match_end"`
	Content     string `json:"content"`
}

// Similarity holds the per-candidate scores.
type Similarity struct {
	CandidateID   string         `json:"candidate_id"`
	Cosine        float64        `json:"cosine"`
	Sequence      float64        `json:"sequence"`
	Combined      float64        `json:"combined"`
	MatchedBlocks []MatchedBlock `json:"matched_blocks"`
}

// Report is the result of one analysis. Similarities follow the input
// candidate order; MatchedBlocks belong to the most similar candidate.
type Report struct {
	MaxScore       float64        `json:"max_score"`
	MostSimilarID  string         `json:"most_similar_id,omitempty"`
	Similarities   []Similarity   `json:"similarities"`
	MatchedBlocks  []MatchedBlock `json:"matched_blocks"`
	TechniquesUsed []string       `json:"techniques_used"`
	Threshold      float64        `json:"threshold"`
}

// Exceeds reports whether the report crosses the alerting threshold.
func (r Report) Exceeds() bool {
	return r.MaxScore > r.Threshold
}

// Engine runs similarity analyses. It is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MinBlockLength <= 0 {
		opts.MinBlockLength = def.MinBlockLength
	}
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.NGramMin <= 0 {
		opts.NGramMin = def.NGramMin
	}
	if opts.NGramMax < opts.NGramMin {
		opts.NGramMax = max(def.NGramMax, opts.NGramMin)
	}
	if opts.MaxSequenceLength <= 0 {
		opts.MaxSequenceLength = def.MaxSequenceLength
	}
	return &Engine{opts: opts}
}

// Options returns the effective options of the engine.
func (e *Engine) Options() Options {
	return e.opts
}

// Analyze compares subject against every candidate.
func (e *Engine) Analyze(subject string, candidates []Candidate) Report {
	report, _ := e.AnalyzeContext(context.Background(), subject, candidates)
	return report
}

// AnalyzeContext is Analyze with cancellation. It checks ctx between
// candidates and while matching, and returns ctx.Err() once it is done.
func (e *Engine) AnalyzeContext(ctx context.Context, subject string, candidates []Candidate) (Report, error) {
	report := Report{
		Similarities:   []Similarity{},
		MatchedBlocks:  []MatchedBlock{},
		TechniquesUsed: []string{TechniqueCosine, TechniqueSequence},
		Threshold:      e.opts.Threshold,
	}
	if len(candidates) == 0 {
		return report, nil
	}

	docs := make([][]rune, 0, len(candidates)+1)
	docs = append(docs, []rune(Normalize(subject)))
	for _, c := range candidates {
		docs = append(docs, []rune(Normalize(c.Text)))
	}
	space := newTFIDFSpace(docs, e.opts.NGramMin, e.opts.NGramMax)
	source := e.clip(docs[0])

	best := -1
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		target := e.clip(docs[i+1])
		blocks, err := newSequenceMatcher(source, target).matchingBlocks(ctx)
		if err != nil {
			return Report{}, err
		}

		sim := Similarity{
			CandidateID:   c.ID,
			Cosine:        space.cosine(0, i+1),
			Sequence:      ratio(blocks, len(source), len(target)),
			MatchedBlocks: e.longBlocks(source, blocks),
		}
		sim.Combined = max(sim.Cosine, sim.Sequence)
		report.Similarities = append(report.Similarities, sim)

		// Strict comparison keeps the first candidate on ties.
		if best < 0 || sim.Combined > report.Similarities[best].Combined {
			best = i
		}
	}

	top := report.Similarities[best]
	report.MaxScore = top.Combined
	report.MostSimilarID = top.CandidateID
	report.MatchedBlocks = top.MatchedBlocks
	return report, nil
}

// clip bounds the input of the sequence metric.
func (e *Engine) clip(text []rune) []rune {
	if len(text) > e.opts.MaxSequenceLength {
		return text[:e.opts.MaxSequenceLength]
	}
	return text
}

// longBlocks converts matching blocks longer than MinBlockLength into
// reportable spans.
func (e *Engine) longBlocks(source []rune, blocks []match) []MatchedBlock {
	out := []MatchedBlock{}
	for _, b := range blocks {
		if b.Size <= e.opts.MinBlockLength {
			continue
		}
		out = append(out, MatchedBlock{
			SourceStart: b.A,
			SourceEnd:   b.A + b.Size,
			MatchStart:  b.B,
			MatchEnd:    b.B + b.Size,
			Content:     string(source[b.A : b.A+b.Size]),
		})
	}
	return out
}
