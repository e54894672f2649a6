package domain

import "time"

// Mode is the execution mode chosen for a batch.
type Mode string

const (
	ModeInline Mode = "inline"
	ModePool   Mode = "pool"
)

// BatchSummary describes a finished batch without its responses.
type BatchSummary struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Mode      Mode          `json:"mode"`
	Workers   int           `json:"workers"`
	Items     int           `json:"items"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// BatchRecord is a finished batch with its ordered responses.
type BatchRecord struct {
	BatchSummary
	Responses []Response `json:"responses"`
}

// CountFailed returns how many responses have absent results.
func CountFailed(responses []Response) int {
	n := 0
	for _, r := range responses {
		if !r.OK() {
			n++
		}
	}
	return n
}
