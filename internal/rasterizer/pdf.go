package rasterizer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrCorruptArtifact is returned for engine output that is not a usable PDF.
var ErrCorruptArtifact = errors.New("rasterizer produced an invalid PDF")

// PDFTools validates and optimizes engine output with pdfcpu.
type PDFTools struct{}

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Inspect validates data as a PDF and returns its page count.
func (PDFTools) Inspect(data []byte) (int, error) {
	if len(data) == 0 || !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, ErrCorruptArtifact
	}
	cfg := pdfConfig()
	if err := api.Validate(bytes.NewReader(data), cfg); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if pages < 1 {
		return 0, fmt.Errorf("%w: no pages", ErrCorruptArtifact)
	}
	return pages, nil
}

// Optimize rewrites data with shared resources deduplicated.
func (PDFTools) Optimize(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &buf, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to optimize PDF: %w", err)
	}
	return buf.Bytes(), nil
}
