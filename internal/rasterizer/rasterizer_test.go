package rasterizer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcRasterizer func(ctx context.Context, html string, opts Options) ([]byte, error)

func (f funcRasterizer) Rasterize(ctx context.Context, html string, opts Options) ([]byte, error) {
	return f(ctx, html, opts)
}

func TestFinalOptionsAreA4WithPrintMargins(t *testing.T) {
	opts := FinalOptions()
	assert.InDelta(t, 8.27, opts.PaperWidth, 0.01)
	assert.InDelta(t, 11.69, opts.PaperHeight, 0.01)
	assert.InDelta(t, 0.59, opts.MarginTop, 0.01)
	assert.InDelta(t, 0.79, opts.MarginLeft, 0.01)
	assert.True(t, opts.Final)
	assert.Empty(t, opts.HeaderHTML)

	preview := PreviewOptions("PREVIEW - NEOZVANIČEN DOKUMENT")
	assert.False(t, preview.Final)
	assert.Contains(t, preview.HeaderHTML, "NEOZVANIČEN DOKUMENT")
}

func TestPreviewOptionsEscapeHeaderText(t *testing.T) {
	opts := PreviewOptions(`<script>alert("x")</script> & co`)
	assert.NotContains(t, opts.HeaderHTML, "<script>")
	assert.Contains(t, opts.HeaderHTML, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; co")
}

func TestBoundedAppliesTimeout(t *testing.T) {
	slow := funcRasterizer(func(ctx context.Context, _ string, _ Options) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	b := NewBounded(slow, 1, 20*time.Millisecond)

	_, err := b.Rasterize(context.Background(), "<html></html>", FinalOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBoundedLimitsConcurrency(t *testing.T) {
	var active, peak int32
	engine := funcRasterizer(func(ctx context.Context, _ string, _ Options) ([]byte, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return []byte("%PDF-1.7"), nil
	})
	b := NewBounded(engine, 2, time.Second)

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := b.Rasterize(context.Background(), "<html></html>", FinalOptions())
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestGotenbergPostsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, gotenbergHTMLRoute, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("printBackground"))
		assert.Equal(t, "8.2677", r.FormValue("paperWidth"))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		assert.Equal(t, "index.html", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "<html>statut</html>", string(body))

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	out, err := NewGotenberg(srv.URL, 0).Rasterize(context.Background(), "<html>statut</html>", FinalOptions())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(out))
}

func TestGotenbergSendsPreviewHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "header.html", files[1].Filename)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	_, err := NewGotenberg(srv.URL, 0).Rasterize(context.Background(), "<html></html>", PreviewOptions("NACRT"))
	require.NoError(t, err)
}

func TestGotenbergErrorStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewBounded(NewGotenberg(srv.URL, 1), 1, 10*time.Second)
	_, err := b.Rasterize(context.Background(), "<html></html>", FinalOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInspectRejectsCorruptOutput(t *testing.T) {
	tools := PDFTools{}
	for _, data := range [][]byte{nil, []byte("<html>not a pdf</html>"), []byte("%PDF-1.7\ngarbage")} {
		_, err := tools.Inspect(data)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorruptArtifact))
	}
}
