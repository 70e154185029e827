// Package rasterizer drives a headless browser engine to turn composed HTML
// into PDF bytes. Every call gets its own engine session and deadline.
package rasterizer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"golang.org/x/sync/semaphore"
)

// Rasterizer converts one HTML document into PDF bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, html string, opts Options) ([]byte, error)
}

// Options are the print settings for one conversion. Sizes are in inches,
// the unit both engines accept.
type Options struct {
	PaperWidth      float64
	PaperHeight     float64
	MarginTop       float64
	MarginBottom    float64
	MarginLeft      float64
	MarginRight     float64
	PrintBackground bool
	// HeaderHTML, when set, is printed at the top of every page.
	HeaderHTML string
	// Final marks artifacts that will be persisted.
	Final bool
}

const mmPerInch = 25.4

func mm(v float64) float64 { return v / mmPerInch }

// FinalOptions are the print settings for registered documents: A4,
// 15 mm top and bottom, 20 mm left and right.
func FinalOptions() Options {
	return Options{
		PaperWidth:      mm(210),
		PaperHeight:     mm(297),
		MarginTop:       mm(15),
		MarginBottom:    mm(15),
		MarginLeft:      mm(20),
		MarginRight:     mm(20),
		PrintBackground: true,
		Final:           true,
	}
}

// PreviewOptions add a red header band with the given text.
func PreviewOptions(header string) Options {
	opts := FinalOptions()
	opts.Final = false
	opts.MarginTop = mm(22)
	opts.HeaderHTML = fmt.Sprintf(
		`<div style="width:100%%;font-size:9px;color:#c00;text-align:center;font-weight:bold;">%s</div>`,
		html.EscapeString(header),
	)
	return opts
}

// ErrBusy is returned when no engine slot frees up before the deadline.
var ErrBusy = errors.New("rasterizer: no engine slot available")

// Bounded limits how many conversions run at once and puts a deadline on
// each one.
type Bounded struct {
	next    Rasterizer
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewBounded wraps next with a concurrency limit and per-call timeout.
func NewBounded(next Rasterizer, maxConcurrent int64, timeout time.Duration) *Bounded {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Bounded{next: next, sem: semaphore.NewWeighted(maxConcurrent), timeout: timeout}
}

// Rasterize waits for a slot and converts within the configured timeout.
// Failures come back as models.UpstreamError.
func (b *Bounded) Rasterize(ctx context.Context, html string, opts Options) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, models.Upstream("rasterizer", fmt.Errorf("%w: %v", ErrBusy, err))
	}
	defer b.sem.Release(1)

	start := time.Now()
	out, err := b.next.Rasterize(ctx, html, opts)
	observe(opts, time.Since(start), err)
	if err != nil {
		slog.Warn("Rasterization failed.", "final", opts.Final, "elapsed", time.Since(start).String(), "error", err)
		if errors.Is(err, models.ErrUpstream) {
			return nil, err
		}
		return nil, models.Upstream("rasterizer", err)
	}
	return out, nil
}
