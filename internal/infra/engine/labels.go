package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tutu-network/classifier/internal/domain"
)

// maxLabelID bounds label ids so a corrupt file cannot force a huge allocation.
const maxLabelID = 1 << 20

// LoadLabels fetches and parses a label file.
func LoadLabels(ctx context.Context, fetcher domain.ContentFetcher, labelsURL string) (domain.LabelSet, error) {
	data, err := fetcher.Fetch(ctx, labelsURL)
	if err != nil {
		return nil, err
	}
	return ParseLabels(data)
}

// ParseLabels parses an "id,name" CSV. The first line is a header and is
// skipped. Each name is placed at its id; ids with no row get "label-<id>".
func ParseLabels(data []byte) (domain.LabelSet, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrEmptyLabels
		}
		return nil, fmt.Errorf("read label header: %w", err)
	}

	byID := make(map[int]string)
	maxID := -1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read labels: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 2 {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("labels line %d: want id,name", line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil || id < 0 || id > maxLabelID {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("labels line %d: invalid id %q", line, rec[0])
		}
		byID[id] = norm.NFC.String(strings.TrimSpace(rec[1]))
		maxID = max(maxID, id)
	}

	if maxID < 0 {
		return nil, domain.ErrEmptyLabels
	}

	labels := make(domain.LabelSet, maxID+1)
	for i := range labels {
		if name, ok := byID[i]; ok {
			labels[i] = name
		} else {
			labels[i] = fmt.Sprintf("label-%d", i)
		}
	}
	return labels, nil
}
