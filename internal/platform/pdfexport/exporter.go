// Package pdfexport turns client-rendered form snapshots into PDFs: the
// snapshot is upscaled onto a white canvas and either paginated over A4
// pages or fitted to a single page.
//
// Output is image-only. Text in the PDF is not selectable or searchable;
// this keeps the printed Vietnamese typography identical to the screen.
package pdfexport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/platform/inflight"
)

var (
	ErrSnapshotMissing  = errors.New("snapshot is required")
	ErrExportInProgress = errors.New("a PDF export for this document is already in progress")
	ErrRenderFailed     = errors.New("could not render PDF")
)

// Mode selects the page layout.
type Mode int

const (
	// MultiPage paginates over A4 pages with fixed margins.
	MultiPage Mode = iota
	// SinglePage fits the snapshot onto one page of matching aspect ratio.
	SinglePage
)

func (m Mode) String() string {
	if m == SinglePage {
		return "single-page"
	}
	return "multi-page"
}

// Result is a finished export.
type Result struct {
	PDF   []byte
	Pages int
}

// Exporter runs exports with at most one in flight per key.
type Exporter struct {
	guard    inflight.Guard
	logger   zerolog.Logger
	geometry Geometry
}

func NewExporter(guard inflight.Guard, logger zerolog.Logger) *Exporter {
	return &Exporter{guard: guard, logger: logger, geometry: A4}
}

// Export renders snapshot under the in-flight key. The hold on key is
// always released before Export returns, whether or not rendering failed.
func (e *Exporter) Export(ctx context.Context, key string, snapshot io.Reader, mode Mode) (*Result, error) {
	if snapshot == nil {
		return nil, ErrSnapshotMissing
	}

	release, err := e.guard.Acquire(ctx, "pdf:"+key)
	if err != nil {
		if errors.Is(err, inflight.ErrBusy) {
			return nil, ErrExportInProgress
		}
		return nil, fmt.Errorf("pdf export %s: %w", key, err)
	}
	defer release()

	img, err := Rasterize(snapshot)
	if errors.Is(err, ErrSnapshotTooLarge) {
		e.logger.Warn().Err(err).Str("key", key).Msg("snapshot rejected")
		return nil, fmt.Errorf("pdf export %s: %w", key, err)
	}
	if err != nil {
		e.logger.Error().Err(err).Str("key", key).Str("mode", mode.String()).Msg("snapshot rasterization failed")
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	var buf bytes.Buffer
	pages := 1
	switch mode {
	case SinglePage:
		err = WriteSinglePage(&buf, img, e.geometry.PageWidth)
	default:
		var layout Layout
		layout, err = WriteMultiPage(&buf, img, e.geometry)
		pages = layout.Pages()
	}
	if err != nil {
		e.logger.Error().Err(err).Str("key", key).Str("mode", mode.String()).Msg("pdf generation failed")
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	e.logger.Info().Str("key", key).Str("mode", mode.String()).Int("pages", pages).Int("bytes", buf.Len()).Msg("pdf exported")
	return &Result{PDF: buf.Bytes(), Pages: pages}, nil
}
