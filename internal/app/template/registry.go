package template

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

//go:embed templates/*.yaml
var builtin embed.FS

// Registry holds the reflection templates known to this build.
// It is read-only after construction.
type Registry struct {
	templates map[domain.TemplateID]*domain.Template
}

// NewRegistry checks every template and indexes it by id.
func NewRegistry(templates ...*domain.Template) (*Registry, error) {
	r := &Registry{templates: make(map[domain.TemplateID]*domain.Template, len(templates))}
	for _, t := range templates {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtin returns the registry of embedded templates.
func Builtin() (*Registry, error) {
	templates, err := parseFS(builtin, "templates")
	if err != nil {
		return nil, err
	}
	return NewRegistry(templates...)
}

// Load returns the builtin registry extended by every *.yaml file in dir.
// A file whose id matches a builtin template replaces it. An empty dir
// means builtin only.
func Load(dir string) (*Registry, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return r, nil
	}

	extra, err := parseFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
	}
	for _, t := range extra {
		delete(r.templates, t.ID)
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// GetTemplate implements domain.TemplateRegistry.
func (r *Registry) GetTemplate(id domain.TemplateID) (*domain.Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
	}
	return t, nil
}

// ListTemplates returns templates sorted by id.
func (r *Registry) ListTemplates() []*domain.Template {
	out := make([]*domain.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) add(t *domain.Template) error {
	if err := Check(t); err != nil {
		return err
	}
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("%w: duplicate template id %s", domain.ErrInvalidTemplate, t.ID)
	}
	r.templates[t.ID] = t
	return nil
}

// Check enforces the structural rules of a template: an id, at least one
// step, and field ids unique across the whole template unless every
// declaration of the id is marked shared.
func Check(t *domain.Template) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidTemplate)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", domain.ErrInvalidTemplate, t.ID)
	}

	seen := make(map[domain.FieldID]domain.FieldDefinition)
	for i, step := range t.Steps {
		if len(step.Fields) == 0 {
			return fmt.Errorf("%w: %s step %d has no fields", domain.ErrInvalidTemplate, t.ID, i)
		}
		for _, f := range step.Fields {
			if f.ID == "" {
				return fmt.Errorf("%w: %s step %d has a field without id", domain.ErrInvalidTemplate, t.ID, i)
			}
			switch f.Kind {
			case domain.KindText, domain.KindScale, domain.KindSingleChoice, domain.KindMultiSelect:
			default:
				return fmt.Errorf("%w: %s field %s has unknown kind %q", domain.ErrInvalidTemplate, t.ID, f.ID, f.Kind)
			}
			if prev, dup := seen[f.ID]; dup && !(prev.Shared && f.Shared) {
				return fmt.Errorf("%w: %s declares field %s twice", domain.ErrInvalidTemplate, t.ID, f.ID)
			}
			seen[f.ID] = f
		}
	}
	return nil
}

// Parse decodes a single YAML template document.
func Parse(data []byte) (*domain.Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t domain.Template
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidTemplate, err)
	}
	return &t, nil
}

func parseFS(fsys fs.FS, dir string) ([]*domain.Template, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var out []*domain.Template
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, e.Name())))
		if err != nil {
			return nil, err
		}
		t, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, t)
	}
	return out, nil
}

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
