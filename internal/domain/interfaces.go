package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the dispatch engine depends on them.

// LabelSet maps a score position to its label name.
type LabelSet []string

// ScoreVector holds one score per label, aligned with a LabelSet.
type ScoreVector []float32

// Classifier is the external classification capability. A unit of
// execution calls Load exactly once and then ClassifyOne per item with the
// model it loaded. Models are never shared between units.
type Classifier interface {
	// Load loads the model and its labels. Failures are *FatalLoadError.
	Load(ctx context.Context) (Model, error)

	// ClassifyOne scores one item. Failures are *ItemError.
	ClassifyOne(ctx context.Context, m Model, item Item) (ScoreVector, error)
}

// Model is a loaded model handle together with its label set.
type Model interface {
	Labels() LabelSet
	Close()
}

// ContentFetcher retrieves the raw bytes behind a reference, retrying
// transient failures internally.
type ContentFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// BatchStore persists finished batches.
type BatchStore interface {
	RecordBatch(ctx context.Context, b BatchRecord) error
	ListBatches(ctx context.Context, limit int) ([]BatchSummary, error)
	GetBatch(ctx context.Context, id string) (*BatchRecord, error)
}
