// Package snapshot writes a point-in-time JSONL dump of every task and
// dependency edge to one or more destinations.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
)

const formatVersion = "1"

// Source is the read side of the task repository.
type Source interface {
	List(ctx context.Context, filter model.TaskFilter, limit int) ([]model.Task, error)
	ListEdges(ctx context.Context) ([]model.Edge, error)
}

// Destination receives one complete JSONL payload per export.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TaskCount int       `json:"task_count"`
	EdgeCount int       `json:"edge_count"`
}

type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes a header line, then every task sorted by id, then every
// edge sorted by (from, to).
func ExportJSONL(ctx context.Context, src Source, w io.Writer, now time.Time) error {
	tasks, err := src.List(ctx, model.TaskFilter{}, 0)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	edges, err := src.ListEdges(ctx)
	if err != nil {
		return fmt.Errorf("list edges: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:   formatVersion,
		Type:      "header",
		Timestamp: now.UTC(),
		TaskCount: len(tasks),
		EdgeCount: len(edges),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, t := range tasks {
		if err := enc.Encode(record{Type: "task", Data: t}); err != nil {
			return fmt.Errorf("encode task %s: %w", t.ID, err)
		}
	}
	for _, e := range edges {
		if err := enc.Encode(record{Type: "edge", Data: e}); err != nil {
			return fmt.Errorf("encode edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	return nil
}

type Exporter struct {
	source       Source
	destinations []Destination
	logger       *zap.Logger
	now          func() time.Time
}

func NewExporter(src Source, logger *zap.Logger, destinations ...Destination) *Exporter {
	return &Exporter{
		source:       src,
		destinations: destinations,
		logger:       logger,
		now:          time.Now,
	}
}

// Run exports once and writes the payload to every destination. A failing
// destination does not stop the others; all failures are joined.
func (e *Exporter) Run(ctx context.Context) (int, error) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, e.source, &buf, e.now()); err != nil {
		return 0, err
	}
	data := buf.Bytes()

	var errs []error
	for i, dest := range e.destinations {
		if err := dest.Write(ctx, data); err != nil {
			e.logger.Error("snapshot destination write failed", zap.Int("destination", i), zap.Error(err))
			errs = append(errs, err)
		}
	}

	e.logger.Info("snapshot exported",
		zap.Int("destinations", len(e.destinations)),
		zap.Int("bytes", len(data)),
	)
	return len(data), errors.Join(errs...)
}
