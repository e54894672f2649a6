// Package engine provides the image classification backend abstraction.
// A Backend loads a model and returns a ModelHandle that scores one
// preprocessed image tensor at a time. The real backend talks to a model
// server over the TF-Serving REST protocol; tests use MockBackend.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Backend Interface ──────────────────────────────────────────────────────

// Backend is the low-level model loading interface.
type Backend interface {
	LoadModel(ctx context.Context, modelURL string, opts LoadOptions) (ModelHandle, error)
	Close()
}

// ModelHandle represents a loaded model.
type ModelHandle interface {
	// Predict returns one score per label for a single image tensor.
	Predict(ctx context.Context, t Tensor) ([]float32, error)
	Close()
}

// LoadOptions configures model loading.
type LoadOptions struct {
	InputSize int           // square input edge in pixels (default 224)
	Timeout   time.Duration // per-request timeout (default 30s)
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.InputSize <= 0 {
		o.InputSize = 224
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// ─── REST Backend ───────────────────────────────────────────────────────────
// Model URL layout follows TF-Serving:
//
//	GET  http://host:8501/v1/models/<name>          → version status
//	POST http://host:8501/v1/models/<name>:predict  → {"predictions":[[...]]}

// RESTBackend loads models served over the TF-Serving REST API.
type RESTBackend struct {
	client *http.Client
}

// NewRESTBackend creates a REST backend. A nil client uses http.DefaultClient
// with the per-load timeout applied to each request.
func NewRESTBackend(client *http.Client) *RESTBackend {
	return &RESTBackend{client: client}
}

type modelStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
		Status  struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	} `json:"model_version_status"`
}

// LoadModel checks that the model server reports at least one AVAILABLE
// version of the model at modelURL.
func (b *RESTBackend) LoadModel(ctx context.Context, modelURL string, opts LoadOptions) (ModelHandle, error) {
	opts = opts.withDefaults()
	modelURL = strings.TrimRight(strings.TrimSpace(modelURL), "/")
	if modelURL == "" {
		return nil, fmt.Errorf("empty model URL")
	}

	client := b.client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("model status request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model status: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status modelStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode model status: %w", err)
	}
	available := false
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			available = true
			break
		}
	}
	if !available {
		return nil, fmt.Errorf("%w: no AVAILABLE version at %s", domain.ErrModelUnavailable, modelURL)
	}

	return &RESTHandle{
		predictURL: modelURL + ":predict",
		client:     client,
		timeout:    opts.Timeout,
	}, nil
}

func (b *RESTBackend) Close() {}

// RESTHandle proxies Predict calls to the model server.
type RESTHandle struct {
	predictURL string
	client     *http.Client
	timeout    time.Duration
	closed     bool
}

type predictRequest struct {
	Instances []Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

func (h *RESTHandle) Predict(ctx context.Context, t Tensor) ([]float32, error) {
	if h.closed {
		return nil, fmt.Errorf("model is closed")
	}

	body, err := json.Marshal(predictRequest{Instances: []Tensor{t}})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.predictURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode predict response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict: HTTP %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Predictions) == 0 {
		return nil, fmt.Errorf("predict: empty predictions")
	}
	return out.Predictions[0], nil
}

func (h *RESTHandle) Close() { h.closed = true }
