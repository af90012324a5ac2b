package index

import "sort"

// rrfK dampens the weight gap between neighboring ranks; 60 is the value
// from the original RRF paper and works well unchanged.
const rrfK = 60

// scoredID is one entry of a single-source ranking, best first.
type scoredID struct {
	id    string
	score float64
}

// fuseRankings merges per-source rankings with reciprocal rank fusion.
// Each list contributes 1/(k+rank+1) per entry; entries found by several
// sources accumulate. The fused list is ordered by descending score with
// ties broken by ascending ID so results are deterministic.
func fuseRankings(lists ...[]scoredID) []scoredID {
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, e := range list {
			scores[e.id] += 1.0 / float64(rrfK+rank+1)
		}
	}

	fused := make([]scoredID, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, scoredID{id: id, score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].id < fused[j].id
	})
	return fused
}
