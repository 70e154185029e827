package rasterizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const gotenbergHTMLRoute = "/forms/chromium/convert/html"

// GotenbergRasterizer posts documents to a Gotenberg service, which runs a
// fresh Chromium page per request.
type GotenbergRasterizer struct {
	client  *resty.Client
	baseURL string
}

// NewGotenberg creates a client for the Gotenberg instance at baseURL.
// retryCount applies to transport errors and 5xx responses.
func NewGotenberg(baseURL string, retryCount int) *GotenbergRasterizer {
	client := resty.New().
		SetTimeout(2 * time.Minute).
		SetRetryCount(retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &GotenbergRasterizer{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *GotenbergRasterizer) Rasterize(ctx context.Context, html string, opts Options) ([]byte, error) {
	req := g.client.R().
		SetContext(ctx).
		SetFileReader("files", "index.html", strings.NewReader(html)).
		SetFormData(map[string]string{
			"paperWidth":      formatInches(opts.PaperWidth),
			"paperHeight":     formatInches(opts.PaperHeight),
			"marginTop":       formatInches(opts.MarginTop),
			"marginBottom":    formatInches(opts.MarginBottom),
			"marginLeft":      formatInches(opts.MarginLeft),
			"marginRight":     formatInches(opts.MarginRight),
			"printBackground": strconv.FormatBool(opts.PrintBackground),
		})
	if opts.HeaderHTML != "" {
		header := "<html><head><meta charset=\"utf-8\"></head><body>" + opts.HeaderHTML + "</body></html>"
		req.SetFileReader("files", "header.html", strings.NewReader(header))
	}

	resp, err := req.Post(g.baseURL + gotenbergHTMLRoute)
	if err != nil {
		return nil, fmt.Errorf("gotenberg request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gotenberg returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), nil
}

func formatInches(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
