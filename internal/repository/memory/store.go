// Package memory provides in-process implementations of the repository
// interfaces. They back tests and STORAGE=memory development runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	models "memoir/internal/domain/models/memoir"
	"memoir/internal/domain/repositories"
)

// Store is the shared state behind every memory repository.
// All access is serialized; ExecTx holds the lock for the whole function and
// restores a snapshot when it returns an error.
type Store struct {
	mu   sync.Mutex
	data *tables
}

type tables struct {
	nextSequence int64
	content      map[string]models.ContentItem
	poolOrder    map[string][]string // project -> content ids in sequence order
	narratives   map[string]models.NarrativeContext
	projections  map[string]models.Projection // Sections left nil
	sections     map[string]models.Section
	sectionOrder map[string][]string // projection -> section ids
	versions     map[string][]models.SectionVersion
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: &tables{
		content:      make(map[string]models.ContentItem),
		poolOrder:    make(map[string][]string),
		narratives:   make(map[string]models.NarrativeContext),
		projections:  make(map[string]models.Projection),
		sections:     make(map[string]models.Section),
		sectionOrder: make(map[string][]string),
		versions:     make(map[string][]models.SectionVersion),
	}}
}

type txKey struct{ store *Store }

// enter locks the store unless ctx already runs inside this store's ExecTx.
func (s *Store) enter(ctx context.Context) func() {
	if ctx.Value(txKey{s}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// transactionManager implements repositories.TransactionManager over a Store
type transactionManager struct {
	store *Store
}

// NewTransactionManager creates a transaction manager for the store
func NewTransactionManager(store *Store) repositories.TransactionManager {
	return &transactionManager{store: store}
}

// ExecTx runs fn with exclusive access to the store and rolls back on error
func (tm *transactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if ctx.Value(txKey{tm.store}) != nil {
		return fn(ctx)
	}

	tm.store.mu.Lock()
	defer tm.store.mu.Unlock()

	snapshot := tm.store.data.clone()
	if err := fn(context.WithValue(ctx, txKey{tm.store}, true)); err != nil {
		tm.store.data = snapshot
		return err
	}
	return nil
}

func (t *tables) clone() *tables {
	c := &tables{
		nextSequence: t.nextSequence,
		content:      maps.Clone(t.content),
		poolOrder:    make(map[string][]string, len(t.poolOrder)),
		narratives:   make(map[string]models.NarrativeContext, len(t.narratives)),
		projections:  maps.Clone(t.projections),
		sections:     make(map[string]models.Section, len(t.sections)),
		sectionOrder: make(map[string][]string, len(t.sectionOrder)),
		versions:     make(map[string][]models.SectionVersion, len(t.versions)),
	}
	for k, v := range t.poolOrder {
		c.poolOrder[k] = slices.Clone(v)
	}
	for k, v := range t.narratives {
		c.narratives[k] = copyNarrative(v)
	}
	for k, v := range t.sections {
		c.sections[k] = copySection(v)
	}
	for k, v := range t.sectionOrder {
		c.sectionOrder[k] = slices.Clone(v)
	}
	for k, v := range t.versions {
		c.versions[k] = slices.Clone(v)
	}
	return c
}

// copyProjection clones the filter slices and drops sections, which are
// stored separately
func copyProjection(p models.Projection) models.Projection {
	p.Sections = nil
	p.ContributorFilter = slices.Clone(p.ContributorFilter)
	p.TagFilter = slices.Clone(p.TagFilter)
	p.ExcludeTags = slices.Clone(p.ExcludeTags)
	return p
}

func copySection(s models.Section) models.Section {
	s.SourceContentIDs = slices.Clone(s.SourceContentIDs)
	s.Tags = slices.Clone(s.Tags)
	s.QuestionIDs = slices.Clone(s.QuestionIDs)
	return s
}

func copyItem(item models.ContentItem) models.ContentItem {
	item.Tags = slices.Clone(item.Tags)
	item.Content = maps.Clone(item.Content)
	return item
}

func copyVersion(v models.SectionVersion) models.SectionVersion {
	v.SourceContentIDs = slices.Clone(v.SourceContentIDs)
	return v
}

func copyNarrative(n models.NarrativeContext) models.NarrativeContext {
	themes := make(map[string]*models.Theme, len(n.Themes))
	for k, t := range n.Themes {
		theme := *t
		theme.SourceContentIDs = slices.Clone(t.SourceContentIDs)
		themes[k] = &theme
	}
	facts := make(map[string]*models.Fact, len(n.Facts))
	for k, f := range n.Facts {
		fact := *f
		fact.SourceContentIDs = slices.Clone(f.SourceContentIDs)
		facts[k] = &fact
	}
	n.Themes = themes
	n.Facts = facts
	n.Timeline = slices.Clone(n.Timeline)
	n.PendingContentIDs = slices.Clone(n.PendingContentIDs)
	n.SkippedContentIDs = slices.Clone(n.SkippedContentIDs)
	n.FailedAttempts = maps.Clone(n.FailedAttempts)
	if n.FailedAttempts == nil {
		n.FailedAttempts = make(map[string]int)
	}
	return n
}
