// Package templates loads legal-document templates.
package templates

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/Lllllllleong/formationflow/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound is returned for unknown slugs.
var ErrTemplateNotFound = fmt.Errorf("template %w", models.ErrNotFound)

// Store looks templates up by slug.
type Store interface {
	Get(ctx context.Context, slug string) (*models.Template, error)
}

//go:embed bundled/*.yaml bundled/*.html
var bundled embed.FS

// Bundled returns the templates shipped with the binary. Each template is a
// <slug>.yaml descriptor next to a <slug>.html body.
func Bundled() ([]*models.Template, error) {
	return Load(bundled, "bundled")
}

// Load reads every descriptor under dir of fsys.
func Load(fsys fs.FS, dir string) ([]*models.Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates in %s: %w", dir, err)
	}
	var out []*models.Template
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		var tpl models.Template
		if err := yaml.Unmarshal(raw, &tpl); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		if tpl.Slug == "" {
			tpl.Slug = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, tpl.Slug+".html"))
		if err != nil {
			return nil, fmt.Errorf("failed to read body of template %s: %w", tpl.Slug, err)
		}
		tpl.Content = string(body)
		out = append(out, &tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// MemoryStore serves a fixed set of templates.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*models.Template
}

func NewMemoryStore(tpls ...*models.Template) *MemoryStore {
	s := &MemoryStore{templates: make(map[string]*models.Template, len(tpls))}
	for _, t := range tpls {
		s.templates[t.Slug] = t
	}
	return s
}

// NewBundledStore serves the embedded templates.
func NewBundledStore() (*MemoryStore, error) {
	tpls, err := Bundled()
	if err != nil {
		return nil, err
	}
	if len(tpls) == 0 {
		return nil, errors.New("no bundled templates found")
	}
	return NewMemoryStore(tpls...), nil
}

func (s *MemoryStore) Get(_ context.Context, slug string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, slug)
	}
	copied := *tpl
	return &copied, nil
}

func (s *MemoryStore) Put(_ context.Context, tpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tpl
	s.templates[tpl.Slug] = &copied
	return nil
}
