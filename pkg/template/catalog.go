package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Catalog.Get for unknown template ids.
var ErrNotFound = errors.New("template not found")

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Catalog is an immutable registry of prompt templates. It is loaded once
// and safe for concurrent lookup by any number of executors.
type Catalog struct {
	templates map[string]*PromptTemplate
	order     []string
}

// Load reads every *.yaml document under the filesystem root into a catalog.
// Each file holds one template. Templates are validated and their section
// patterns compiled; a load error names the offending file.
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*PromptTemplate)}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".yaml" {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		var tmpl PromptTemplate
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return fmt.Errorf("parse template %s: %w", p, err)
		}
		if err := tmpl.compile(); err != nil {
			return fmt.Errorf("invalid template %s: %w", p, err)
		}
		if _, ok := c.templates[tmpl.ID]; ok {
			return fmt.Errorf("duplicate template id %s in %s", tmpl.ID, p)
		}
		c.templates[tmpl.ID] = &tmpl
		c.order = append(c.order, tmpl.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(c.templates) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	sort.Strings(c.order)
	return c, nil
}

// Builtin loads the catalog of transcript analysis templates shipped with
// the binary.
func Builtin() (*Catalog, error) {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Get returns the template with the given id.
func (c *Catalog) Get(id string) (*PromptTemplate, error) {
	tmpl, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return tmpl, nil
}

// IDs returns all template ids in stable (sorted) order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// ByPhase returns the ids of all templates in a phase, in stable order.
func (c *Catalog) ByPhase(phase Phase) []string {
	var ids []string
	for _, id := range c.order {
		if c.templates[id].Phase == phase {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of templates in the catalog.
func (c *Catalog) Len() int {
	return len(c.templates)
}
