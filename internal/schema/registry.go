package schema

import "sync"

// Registry is the in-memory cache of form definitions, keyed by id and slug.
// Loaded at startup and reloaded after authoring mutations.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Form
	bySlug map[string]*Form
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Form),
		bySlug: make(map[string]*Form),
	}
}

// Get returns the form with the given id, or nil.
func (r *Registry) Get(id string) *Form {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// GetBySlug returns the form with the given slug, or nil.
func (r *Registry) GetBySlug(slug string) *Form {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bySlug[slug]
}

// Slugs returns every known form slug.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.bySlug))
	for s := range r.bySlug {
		slugs = append(slugs, s)
	}
	return slugs
}

// All returns all registered forms.
func (r *Registry) All() []*Form {
	r.mu.RLock()
	defer r.mu.RUnlock()
	forms := make([]*Form, 0, len(r.byID))
	for _, f := range r.byID {
		forms = append(forms, f)
	}
	return forms
}

// Load replaces the registry contents. Called during startup and after
// authoring mutations.
func (r *Registry) Load(forms []*Form) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]*Form, len(forms))
	r.bySlug = make(map[string]*Form, len(forms))
	for _, f := range forms {
		r.byID[f.ID] = f
		r.bySlug[f.Slug] = f
	}
}
