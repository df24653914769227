package similarity

import (
	"context"
	"sort"
)

// ctxCheckRows is how many subject runes longestMatch scans between
// cancellation checks.
const ctxCheckRows = 1024

// match is a contiguous run of equal runes: a[A:A+Size] == b[B:B+Size].
type match struct {
	A, B, Size int
}

// sequenceMatcher finds matching blocks between two rune sequences using the
// Ratcliff/Obershelp approach: take the longest common contiguous run, then
// recurse on the pieces to its left and right.
type sequenceMatcher struct {
	a, b []rune
	b2j  map[rune][]int

	// prev and cur hold the run lengths of the last and current row,
	// indexed by j+1. Both are all zero between longestMatch calls.
	prev, cur       []int
	prevSet, curSet []int
}

func newSequenceMatcher(a, b []rune) *sequenceMatcher {
	b2j := make(map[rune][]int)
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}
	return &sequenceMatcher{
		a:    a,
		b:    b,
		b2j:  b2j,
		prev: make([]int, len(b)+1),
		cur:  make([]int, len(b)+1),
	}
}

// longestMatch returns the longest common run within a[alo:ahi] and
// b[blo:bhi]. Ties go to the run starting earliest in a, then earliest in b.
func (m *sequenceMatcher) longestMatch(ctx context.Context, alo, ahi, blo, bhi int) (match, error) {
	best := match{A: alo, B: blo}
	defer m.reset()

	for i := alo; i < ahi; i++ {
		if (i-alo)%ctxCheckRows == ctxCheckRows-1 {
			if err := ctx.Err(); err != nil {
				return match{}, err
			}
		}

		positions := m.b2j[m.a[i]]
		for _, j := range positions[sort.SearchInts(positions, blo):] {
			if j >= bhi {
				break
			}
			k := m.prev[j] + 1
			m.cur[j+1] = k
			m.curSet = append(m.curSet, j+1)
			if k > best.Size {
				best = match{A: i - k + 1, B: j - k + 1, Size: k}
			}
		}

		for _, j := range m.prevSet {
			m.prev[j] = 0
		}
		m.prev, m.cur = m.cur, m.prev
		m.prevSet, m.curSet = m.curSet, m.prevSet[:0]
	}
	return best, nil
}

func (m *sequenceMatcher) reset() {
	for _, j := range m.prevSet {
		m.prev[j] = 0
	}
	for _, j := range m.curSet {
		m.cur[j] = 0
	}
	m.prevSet = m.prevSet[:0]
	m.curSet = m.curSet[:0]
}

// matchingBlocks returns all matching blocks in ascending order, with
// adjacent blocks merged.
func (m *sequenceMatcher) matchingBlocks(ctx context.Context) ([]match, error) {
	type span struct{ alo, ahi, blo, bhi int }

	var found []match
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		x, err := m.longestMatch(ctx, s.alo, s.ahi, s.blo, s.bhi)
		if err != nil {
			return nil, err
		}
		if x.Size == 0 {
			continue
		}
		found = append(found, x)
		if s.alo < x.A && s.blo < x.B {
			queue = append(queue, span{s.alo, x.A, s.blo, x.B})
		}
		if x.A+x.Size < s.ahi && x.B+x.Size < s.bhi {
			queue = append(queue, span{x.A + x.Size, s.ahi, x.B + x.Size, s.bhi})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].A != found[j].A {
			return found[i].A < found[j].A
		}
		return found[i].B < found[j].B
	})

	merged := make([]match, 0, len(found))
	for _, x := range found {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.A+last.Size == x.A && last.B+last.Size == x.B {
				last.Size += x.Size
				continue
			}
		}
		merged = append(merged, x)
	}
	return merged, nil
}

// ratio computes 2*M/T where M is the number of matched runes and T the
// combined length of both sequences. Either side being empty yields 0.
func ratio(blocks []match, la, lb int) float64 {
	if la == 0 || lb == 0 {
		return 0
	}
	matched := 0
	for _, b := range blocks {
		matched += b.Size
	}
	return clamp01(2 * float64(matched) / float64(la+lb))
}
