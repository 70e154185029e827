package render

import (
	"bytes"
	"fmt"

	"github.com/flosch/pongo2/v6"
)

// Mode selects the fidelity of a composed document.
type Mode int

const (
	// ModeFinal is the print-ready artifact that gets stored and registered.
	ModeFinal Mode = iota
	// ModePreview is watermarked and never persisted.
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "final"
}

const (
	DefaultWatermark = "PREVIEW - NEOZVANIČEN"
	DefaultBanner    = "Ovo je pregled dokumenta. Konačna verzija biće dostupna nakon potvrde uplate."
)

const baseCSS = `
@page { size: A4; margin: 15mm 20mm; }
body { font-family: "Times New Roman", Times, serif; font-size: 11pt; line-height: 1.5; color: #000; margin: 0; }
h1 { font-size: 16pt; text-align: center; margin: 0 0 12pt; }
h2 { font-size: 13pt; margin: 14pt 0 6pt; page-break-after: avoid; }
h3 { font-size: 11pt; margin: 10pt 0 4pt; page-break-after: avoid; }
p { margin: 0 0 6pt; text-align: justify; }
table { width: 100%; border-collapse: collapse; }
td, th { border: 1px solid #000; padding: 3pt 5pt; vertical-align: top; }
.signatures, .signature-block { page-break-inside: avoid; margin-top: 24pt; }
.page-break { page-break-before: always; }
`

const finalShell = `<!DOCTYPE html>
<html lang="sr">
<head>
<meta charset="utf-8">
<title>{{ title }}</title>
<style>{{ css|safe }}</style>
</head>
<body class="final">
<main class="document">{{ content|safe }}</main>
</body>
</html>
`

const previewShell = `<!DOCTYPE html>
<html lang="sr">
<head>
<meta charset="utf-8">
<title>{{ title }}</title>
<style>{{ css|safe }}
.preview-watermark { position: fixed; top: 40%; left: -10%; width: 120%; text-align: center; transform: rotate(-35deg); font-size: 60pt; font-weight: bold; color: rgba(200, 0, 0, 0.12); z-index: 1000; pointer-events: none; }
.preview-banner { border: 2px solid #c00; background: #fff3f3; color: #c00; padding: 8pt 12pt; margin-bottom: 16pt; font-weight: bold; text-align: center; }
.sensitive { filter: blur(3px); }
</style>
</head>
<body class="preview">
<div class="preview-watermark">{{ watermark }}</div>
<div class="preview-banner">{{ banner }}</div>
<main class="document">{{ content|safe }}</main>
</body>
</html>
`

// Compositor wraps rendered content in a complete print document.
type Compositor struct {
	watermark string
	banner    string
	final     *pongo2.Template
	preview   *pongo2.Template
}

// NewCompositor compiles the document shells. Empty arguments fall back to
// the defaults.
func NewCompositor(watermark, banner string) (*Compositor, error) {
	if watermark == "" {
		watermark = DefaultWatermark
	}
	if banner == "" {
		banner = DefaultBanner
	}
	set := pongo2.NewSet("shells", pongo2.NewFSLoader(noIncludes))
	final, err := set.FromString(finalShell)
	if err != nil {
		return nil, fmt.Errorf("compositor: parse final shell: %w", err)
	}
	preview, err := set.FromString(previewShell)
	if err != nil {
		return nil, fmt.Errorf("compositor: parse preview shell: %w", err)
	}
	return &Compositor{watermark: watermark, banner: banner, final: final, preview: preview}, nil
}

// Watermark is the text stamped across preview pages.
func (c *Compositor) Watermark() string {
	return c.watermark
}

// Compose returns a self-contained HTML document for the given mode.
func (c *Compositor) Compose(mode Mode, title, content string) (string, error) {
	ctx := pongo2.Context{
		"title":   title,
		"css":     baseCSS,
		"content": content,
	}
	tpl := c.final
	if mode == ModePreview {
		tpl = c.preview
		ctx["watermark"] = c.watermark
		ctx["banner"] = c.banner
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(ctx, &buf); err != nil {
		return "", fmt.Errorf("compositor: execute %s shell: %w", mode, err)
	}
	return buf.String(), nil
}
