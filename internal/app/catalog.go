package app

import (
	"context"
	"sort"
	"sync/atomic"

	"competition-service/internal/domain"
)

// CatalogLoader reads competition definitions from a backing source (folder tree, fixtures).
type CatalogLoader interface {
	LoadCompetitions(ctx context.Context) (map[string]domain.Competition, error)
}

// Catalog is an immutable snapshot of the loaded competitions.
type Catalog struct {
	competitions map[string]domain.Competition
	defaultID    string
}

// NewCatalog builds a snapshot. The default is preferredDefault when present,
// otherwise the lowest competition id.
func NewCatalog(competitions map[string]domain.Competition, preferredDefault string) *Catalog {
	copied := make(map[string]domain.Competition, len(competitions))
	for id, c := range competitions {
		copied[id] = c
	}
	c := &Catalog{competitions: copied}
	if _, ok := copied[preferredDefault]; ok {
		c.defaultID = preferredDefault
	} else {
		for id := range copied {
			if c.defaultID == "" || id < c.defaultID {
				c.defaultID = id
			}
		}
	}
	return c
}

// Competition looks up a competition by id.
func (c *Catalog) Competition(id string) (domain.Competition, bool) {
	comp, ok := c.competitions[id]
	return comp, ok
}

// List returns competitions ordered by name, then id.
func (c *Catalog) List() []domain.Competition {
	list := make([]domain.Competition, 0, len(c.competitions))
	for _, comp := range c.competitions {
		list = append(list, comp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// DefaultID is empty when the catalog is empty.
func (c *Catalog) DefaultID() string {
	return c.defaultID
}

// Records projects the catalog onto persisted competition rows.
func (c *Catalog) Records() []domain.CompetitionRecord {
	list := c.List()
	records := make([]domain.CompetitionRecord, 0, len(list))
	for _, comp := range list {
		records = append(records, comp.Record())
	}
	return records
}

// CatalogProvider holds the current catalog and swaps it on reload.
type CatalogProvider struct {
	loader           CatalogLoader
	preferredDefault string
	current          atomic.Pointer[Catalog]
}

// NewCatalogProvider loads the catalog once.
func NewCatalogProvider(ctx context.Context, loader CatalogLoader, preferredDefault string) (*CatalogProvider, error) {
	p := &CatalogProvider{loader: loader, preferredDefault: preferredDefault}
	if _, err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Current returns the active snapshot.
func (p *CatalogProvider) Current() *Catalog {
	return p.current.Load()
}

// Reload re-reads competitions; the previous snapshot stays in place on error.
func (p *CatalogProvider) Reload(ctx context.Context) (*Catalog, error) {
	competitions, err := p.loader.LoadCompetitions(ctx)
	if err != nil {
		return nil, err
	}
	catalog := NewCatalog(competitions, p.preferredDefault)
	p.current.Store(catalog)
	return catalog, nil
}
