package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// ClassifierConfig names the model and labels a Classifier loads.
type ClassifierConfig struct {
	ModelURL  string
	LabelsURL string
	Load      LoadOptions
	MaxPixels int  // decoded size limit per image; 0 = DefaultMaxPixels
	Timing    bool // log load and per-item timings at debug level
}

// Classifier implements domain.Classifier on top of a Backend and a
// content fetcher. Every Load produces an independent model.
type Classifier struct {
	cfg     ClassifierConfig
	backend Backend
	fetcher domain.ContentFetcher
	labels  domain.ContentFetcher
	logger  *slog.Logger
}

// NewClassifier wires a backend and fetcher into a classifier.
func NewClassifier(cfg ClassifierConfig, backend Backend, fetcher domain.ContentFetcher, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Load = cfg.Load.withDefaults()
	return &Classifier{cfg: cfg, backend: backend, fetcher: fetcher, labels: fetcher, logger: logger}
}

// SetLabelFetcher sets the fetcher used for the label file, typically a
// cache in front of the image fetcher.
func (c *Classifier) SetLabelFetcher(f domain.ContentFetcher) { c.labels = f }

// model is the domain.Model handed out by Load.
type model struct {
	handle ModelHandle
	labels domain.LabelSet
}

func (m *model) Labels() domain.LabelSet { return m.labels }
func (m *model) Close()                  { m.handle.Close() }

// Load loads the model, then its labels.
func (c *Classifier) Load(ctx context.Context) (domain.Model, error) {
	start := time.Now()
	handle, err := c.backend.LoadModel(ctx, c.cfg.ModelURL, c.cfg.Load)
	if err != nil {
		c.logger.Warn("no model returned for URL", "url", c.cfg.ModelURL, "error", err)
		return nil, &domain.FatalLoadError{Stage: domain.StageModel, Err: err}
	}
	if c.cfg.Timing {
		c.logger.Debug("time taken for model load", "elapsed", time.Since(start))
	}

	start = time.Now()
	labels, err := LoadLabels(ctx, c.labels, c.cfg.LabelsURL)
	if err != nil {
		handle.Close()
		return nil, &domain.FatalLoadError{Stage: domain.StageLabels, Err: err}
	}
	if c.cfg.Timing {
		c.logger.Debug("time taken for labels load", "elapsed", time.Since(start), "labels", len(labels))
	}

	return &model{handle: handle, labels: labels}, nil
}

// ClassifyOne fetches, decodes and scores one image.
func (c *Classifier) ClassifyOne(ctx context.Context, m domain.Model, item domain.Item) (domain.ScoreVector, error) {
	mdl, ok := m.(*model)
	if !ok {
		return nil, fmt.Errorf("model %T was not loaded by this classifier", m)
	}

	data, err := c.fetcher.Fetch(ctx, string(item))
	if err != nil {
		return nil, &domain.ItemError{Kind: domain.ItemFetch, Item: item, Err: err}
	}

	start := time.Now()
	tensor, format, err := DecodeImage(data, c.cfg.Load.InputSize, c.cfg.MaxPixels)
	if err != nil {
		return nil, &domain.ItemError{Kind: domain.ItemDecode, Item: item, Err: err}
	}
	if c.cfg.Timing {
		c.logger.Debug("time taken for image preprocessing", "image", item, "format", format, "elapsed", time.Since(start))
	}

	scores, err := mdl.handle.Predict(ctx, tensor)
	if err != nil {
		return nil, &domain.ItemError{Kind: domain.ItemInference, Item: item, Err: err}
	}
	if len(scores) != len(mdl.labels) {
		return nil, &domain.ItemError{
			Kind: domain.ItemInference,
			Item: item,
			Err:  fmt.Errorf("%w: %d scores for %d labels", domain.ErrScoreMismatch, len(scores), len(mdl.labels)),
		}
	}
	return domain.ScoreVector(scores), nil
}
