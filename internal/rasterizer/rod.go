package rasterizer

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// RodRasterizer launches a dedicated headless Chrome for every conversion
// and tears it down afterwards, on success or failure.
type RodRasterizer struct {
	bin       string
	noSandbox bool
}

// NewRod creates a go-rod backed rasterizer. An empty bin lets go-rod find
// or download a browser.
func NewRod(bin string, noSandbox bool) *RodRasterizer {
	return &RodRasterizer{bin: bin, noSandbox: noSandbox}
}

func (r *RodRasterizer) Rasterize(ctx context.Context, html string, opts Options) ([]byte, error) {
	l := launcher.New().Context(ctx).Headless(true).NoSandbox(r.noSandbox)
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed waiting for document load: %w", err)
	}

	req := &proto.PagePrintToPDF{
		PaperWidth:      gson.Num(opts.PaperWidth),
		PaperHeight:     gson.Num(opts.PaperHeight),
		MarginTop:       gson.Num(opts.MarginTop),
		MarginBottom:    gson.Num(opts.MarginBottom),
		MarginLeft:      gson.Num(opts.MarginLeft),
		MarginRight:     gson.Num(opts.MarginRight),
		PrintBackground: opts.PrintBackground,
	}
	if opts.HeaderHTML != "" {
		req.DisplayHeaderFooter = true
		req.HeaderTemplate = opts.HeaderHTML
		req.FooterTemplate = "<span></span>"
	}

	stream, err := page.PDF(req)
	if err != nil {
		return nil, fmt.Errorf("failed to print PDF: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF stream: %w", err)
	}
	return data, nil
}
