package dispatch

import (
	"cmp"
	"slices"

	"github.com/tutu-network/classifier/internal/domain"
)

// Aggregate orders responses by task index. The result has exactly one
// response per task: a task with no response gets one with absent results,
// and responses for unknown or repeated indices are dropped.
func Aggregate(tasks []domain.Task, responses []domain.Response) []domain.Response {
	byIndex := make(map[int]domain.Response, len(responses))
	for _, r := range responses {
		if _, seen := byIndex[r.Index]; !seen {
			byIndex[r.Index] = r
		}
	}

	out := make([]domain.Response, 0, len(tasks))
	for _, t := range tasks {
		r, ok := byIndex[t.Index]
		if !ok {
			r = domain.FailedResponse(t)
		}
		out = append(out, r)
	}

	slices.SortFunc(out, func(a, b domain.Response) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// TopN returns the n highest-scoring labels, highest first. Labels and
// scores are paired by position up to the shorter of the two. Equal scores
// keep label order, so the lower label index wins a tie.
func TopN(labels domain.LabelSet, scores domain.ScoreVector, n int) []domain.RankedResult {
	if n <= 0 {
		return []domain.RankedResult{}
	}

	size := min(len(labels), len(scores))
	ranked := make([]domain.RankedResult, size)
	for i := range size {
		ranked[i] = domain.RankedResult{Label: labels[i], Score: scores[i]}
	}

	// NaN compares below every number, so it sinks to the end.
	slices.SortStableFunc(ranked, func(a, b domain.RankedResult) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if n < len(ranked) {
		ranked = slices.Clip(ranked[:n])
	}
	return ranked
}
