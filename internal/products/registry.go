package products

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"memoir/internal/domain"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry holds every loaded product definition
type Registry struct {
	products map[string]*Product
	mu       sync.RWMutex
}

// NewRegistry creates a registry with the embedded products loaded
func NewRegistry() (*Registry, error) {
	r := &Registry{
		products: make(map[string]*Product),
	}

	if err := r.loadFS(configFiles, "config"); err != nil {
		return nil, fmt.Errorf("failed to load embedded products: %w", err)
	}

	return r, nil
}

// LoadDir loads every *.yaml file in dir. Products with an id already
// registered are replaced.
func (r *Registry) LoadDir(dir string) error {
	return r.loadFS(os.DirFS(dir), ".")
}

func (r *Registry) loadFS(fsys fs.FS, root string) error {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.yaml")))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := r.Load(data); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Load parses and validates one YAML document and registers its products
func (r *Registry) Load(data []byte) error {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal products: %w", err)
	}

	for i := range file.Products {
		p := file.Products[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("product %q: %w", p.ID, err)
		}
		r.mu.Lock()
		r.products[p.ID] = &p
		r.mu.Unlock()
	}
	return nil
}

// Product returns a product by id
func (r *Registry) Product(id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("unknown product: %s", id)}
	}
	return p, nil
}

// Resolve returns a projection definition. An empty definitionID selects the
// product's default definition (or its first).
func (r *Registry) Resolve(productID, definitionID string) (*Resolved, error) {
	p, err := r.Product(productID)
	if err != nil {
		return nil, err
	}
	if len(p.Projections) == 0 {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("product %s defines no projections", productID)}
	}

	if definitionID == "" {
		def := &p.Projections[0]
		for i := range p.Projections {
			if p.Projections[i].Default {
				def = &p.Projections[i]
				break
			}
		}
		return &Resolved{Product: p, Definition: def}, nil
	}

	for i := range p.Projections {
		if p.Projections[i].ID == definitionID {
			return &Resolved{Product: p, Definition: &p.Projections[i]}, nil
		}
	}
	return nil, &domain.NotFoundError{
		Message: fmt.Sprintf("unknown projection definition %s for product %s", definitionID, productID),
	}
}

// ListProducts returns all products ordered by id
func (r *Registry) ListProducts() []Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool {
		return strings.Compare(list[i].ID, list[j].ID) < 0
	})
	return list
}
