// Package render turns a legal-document template and a request's data
// record into print-ready markup.
package render

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
)

// noIncludes backs the template set so that templates cannot pull files
// from disk through include or extends.
var noIncludes embed.FS

// Renderer executes document templates. Compiled templates are cached per
// slug, version and content hash; a Renderer is safe for concurrent use.
type Renderer struct {
	mu        sync.RWMutex
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template
	policy    *bluemonday.Policy
}

// NewRenderer constructs a Renderer with an empty template cache.
func NewRenderer() *Renderer {
	return &Renderer{
		set:       pongo2.NewSet("documents", pongo2.NewFSLoader(noIncludes)),
		templates: make(map[string]*pongo2.Template),
		policy:    documentPolicy(),
	}
}

// Render validates data against the template's declared variables and
// executes the template. Missing optional values and unknown paths render
// as empty strings. Identical inputs produce identical output.
func (r *Renderer) Render(tpl *models.Template, data map[string]any) (string, error) {
	if tpl == nil {
		return "", errors.New("render: template is nil")
	}
	record, err := normalize(data)
	if err != nil {
		return "", fmt.Errorf("render: convert data: %w", err)
	}
	if err := ValidateData(tpl.Variables, record); err != nil {
		return "", err
	}

	compiled, err := r.compile(tpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := compiled.ExecuteWriter(pongo2.Context(record), &buf); err != nil {
		return "", fmt.Errorf("render: execute template %q: %w", tpl.Slug, err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

func (r *Renderer) compile(tpl *models.Template) (*pongo2.Template, error) {
	key := cacheKey(tpl)

	r.mu.RLock()
	if compiled, ok := r.templates[key]; ok {
		r.mu.RUnlock()
		return compiled, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if compiled, ok := r.templates[key]; ok {
		return compiled, nil
	}
	compiled, err := r.set.FromString(tpl.Content)
	if err != nil {
		return nil, fmt.Errorf("render: parse template %q v%d: %w", tpl.Slug, tpl.Version, err)
	}
	r.templates[key] = compiled
	return compiled, nil
}

func cacheKey(tpl *models.Template) string {
	sum := sha256.Sum256([]byte(tpl.Content))
	return fmt.Sprintf("%s@%d#%s", tpl.Slug, tpl.Version, hex.EncodeToString(sum[:8]))
}

// normalize converts the record to plain JSON values so that templates and
// the schema check see maps, slices, strings, float64 and bool only.
func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// documentPolicy keeps document structure and drops anything that would
// make the markup fetch or execute something.
func documentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardAttributes()
	p.AllowElements(
		"article", "section", "header", "footer", "div", "span", "p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"strong", "b", "em", "i", "u", "small", "sub", "sup", "blockquote",
	)
	p.AllowLists()
	p.AllowTables()
	p.AllowAttrs("class").Globally()
	return p
}
