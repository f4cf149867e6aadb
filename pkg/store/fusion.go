package store

import "sort"

// rrfK matches the remote index's server-side fusion constant, so both
// drivers rank and score identically. The small constant gives a sharp
// rank falloff: a candidate on top of both legs scores 1.0, top of one
// leg 0.5. The engine's similarity thresholds depend on this scale.
const rrfK = 2

type fusedHit struct {
	id    uint64
	score float32
}

// fuseRRF merges the dense and sparse candidate rankings with reciprocal
// rank fusion: each candidate scores the sum of 1/(k+rank) over the lists
// it appears in. Ties break by dense rank (a candidate the dense leg saw
// earlier wins), then by id for determinism. Duplicate ids within one list
// keep their best rank.
func fuseRRF(dense, sparse []uint64) []fusedHit {
	denseRank := rankOf(dense)
	sparseRank := rankOf(sparse)

	scores := make(map[uint64]float32, len(denseRank)+len(sparseRank))
	for id, r := range denseRank {
		scores[id] += 1 / float32(rrfK+r)
	}
	for id, r := range sparseRank {
		scores[id] += 1 / float32(rrfK+r)
	}

	out := make([]fusedHit, 0, len(scores))
	for id, s := range scores {
		out = append(out, fusedHit{id: id, score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ra, aok := denseRank[a.id]
		rb, bok := denseRank[b.id]
		switch {
		case aok && bok && ra != rb:
			return ra < rb
		case aok != bok:
			return aok
		}
		return a.id < b.id
	})
	return out
}

// rankOf maps each id to its first (best) position in the list.
func rankOf(ids []uint64) map[uint64]int {
	ranks := make(map[uint64]int, len(ids))
	for i, id := range ids {
		if _, ok := ranks[id]; !ok {
			ranks[id] = i
		}
	}
	return ranks
}
