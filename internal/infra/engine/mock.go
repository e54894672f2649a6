package engine

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ─── Mock Backend (for testing without a model server) ──────────────────────

// MockBackend implements Backend for testing. Its models score an image by
// its dominant color channel: red images favor label 0, green label 1,
// blue label 2. Any further labels get a small fixed score.
type MockBackend struct {
	NumLabels  int   // length of every score vector (default 3)
	LoadErr    error // returned by LoadModel when set
	PredictErr error // returned by Predict when set

	loads atomic.Int32
}

func NewMockBackend(numLabels int) *MockBackend {
	return &MockBackend{NumLabels: numLabels}
}

func (m *MockBackend) LoadModel(_ context.Context, modelURL string, _ LoadOptions) (ModelHandle, error) {
	m.loads.Add(1)
	if modelURL == "" {
		return nil, fmt.Errorf("empty model URL")
	}
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	n := m.NumLabels
	if n <= 0 {
		n = 3
	}
	return &MockModelHandle{numLabels: n, predictErr: m.PredictErr}, nil
}

// Loads returns how many times LoadModel was called.
func (m *MockBackend) Loads() int { return int(m.loads.Load()) }

func (m *MockBackend) Close() {}

// MockModelHandle implements ModelHandle for testing.
type MockModelHandle struct {
	numLabels  int
	predictErr error
	closed     atomic.Bool
}

func (h *MockModelHandle) Predict(ctx context.Context, t Tensor) ([]float32, error) {
	if h.closed.Load() {
		return nil, fmt.Errorf("model is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.predictErr != nil {
		return nil, h.predictErr
	}

	var sum [3]float64
	for _, row := range t {
		for _, px := range row {
			for c := range px {
				sum[c] += float64(px[c])
			}
		}
	}
	dominant := 0
	for c := 1; c < 3; c++ {
		if sum[c] > sum[dominant] {
			dominant = c
		}
	}

	scores := make([]float32, h.numLabels)
	for i := range scores {
		scores[i] = 0.01
	}
	if dominant < len(scores) {
		scores[dominant] = 0.9
	}
	return scores, nil
}

func (h *MockModelHandle) Closed() bool { return h.closed.Load() }

func (h *MockModelHandle) Close() { h.closed.Store(true) }
