// Package cache holds the process-lifetime identity maps from natural
// keys to persisted row ids. The cache is a value owned by one
// ingestion run for one source: it is warmed from the database at run
// start, written through on every create, never evicted and never
// persisted itself.
package cache

import "sync"

// CategoryKey identifies a category within one source. ParentID 0
// means "root"; a name is only unique under its parent, so the parent
// is part of the key.
type CategoryKey struct {
	Name     string
	ParentID int64
}

// CategoryEntry is what the by-name index yields: enough to resolve an
// explicit parent reference that arrives as a bare name.
type CategoryEntry struct {
	ID       int64
	ParentID int64
}

// Store is the per-source identity cache. It is not safe for
// concurrent use; the engine runs strictly sequentially per source and
// each run owns its own Store.
type Store struct {
	SourceID int64

	categories    map[CategoryKey]int64
	byName        map[string][]CategoryEntry
	manufacturers map[string]int64
	articles      map[string]int64
}

func NewStore(sourceID int64) *Store {
	return &Store{
		SourceID:      sourceID,
		categories:    make(map[CategoryKey]int64),
		byName:        make(map[string][]CategoryEntry),
		manufacturers: make(map[string]int64),
		articles:      make(map[string]int64),
	}
}

func (s *Store) Category(name string, parentID int64) (int64, bool) {
	id, ok := s.categories[CategoryKey{Name: name, ParentID: parentID}]
	return id, ok
}

// PutCategory is idempotent: re-putting the same key overwrites with
// the same or newer id. Every put must follow a successful create so
// the cache never points at a nonexistent row.
func (s *Store) PutCategory(name string, parentID, id int64) {
	key := CategoryKey{Name: name, ParentID: parentID}
	if _, ok := s.categories[key]; !ok {
		s.byName[name] = append(s.byName[name], CategoryEntry{ID: id, ParentID: parentID})
	}
	s.categories[key] = id
}

// CategoriesNamed returns every cached category with the given name,
// regardless of parent. Used when a source declares a parent by bare
// name and the chain gives no id to anchor on.
func (s *Store) CategoriesNamed(name string) []CategoryEntry {
	return s.byName[name]
}

func (s *Store) Manufacturer(key string) (int64, bool) {
	id, ok := s.manufacturers[key]
	return id, ok
}

func (s *Store) PutManufacturer(key string, id int64) {
	s.manufacturers[key] = id
}

func (s *Store) Article(article string) (int64, bool) {
	id, ok := s.articles[article]
	return id, ok
}

func (s *Store) PutArticle(article string, id int64) {
	s.articles[article] = id
}

// Properties is the one global cache: property names are shared
// vocabulary across sources, so when several sources ingest in
// parallel they must share a single locked instance.
type Properties struct {
	mu  sync.RWMutex
	ids map[string]int64
}

func NewProperties() *Properties {
	return &Properties{ids: make(map[string]int64)}
}

func (p *Properties) Get(name string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.ids[name]
	return id, ok
}

func (p *Properties) Put(name string, id int64) {
	p.mu.Lock()
	p.ids[name] = id
	p.mu.Unlock()
}
