package checkin

import (
	"context"
	"errors"
	"sync"
)

// Catalog caches the activities offered today.  It is filled once per
// session and never refreshed afterwards, so an activity id chosen by the
// visitor is always checked against the list they were shown.
type Catalog struct {
	src ActivitySource

	fetch sync.Mutex // serialises the single remote fetch

	mu     sync.RWMutex
	loaded bool
	items  []Activity
	index  map[int64]int
}

// NewCatalog returns an empty catalog backed by src.
func NewCatalog(src ActivitySource) *Catalog {
	return &Catalog{src: src}
}

// Fetch loads today's activities unless they are already loaded.  An
// empty list is a valid result.  Failures come back as *Failure tagged
// ReasonCatalogAuth or ReasonCatalogTransport.
func (c *Catalog) Fetch(ctx context.Context) ([]Activity, error) {
	c.fetch.Lock()
	defer c.fetch.Unlock()

	if c.Loaded() {
		return c.Activities(), nil
	}
	items, err := c.src.ActivitiesToday(ctx)
	if err != nil {
		return nil, classifyCatalogErr(err)
	}

	index := make(map[int64]int, len(items))
	snapshot := make([]Activity, len(items))
	for i, a := range items {
		snapshot[i] = a
		index[a.ID] = i
	}
	c.mu.Lock()
	c.items = snapshot
	c.index = index
	c.loaded = true
	c.mu.Unlock()
	return c.Activities(), nil
}

// Loaded reports whether Fetch has completed successfully.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Activities returns a copy of the cached list.  It is non-nil once the
// catalog is loaded, even when no activity runs today.
func (c *Catalog) Activities() []Activity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil
	}
	out := make([]Activity, len(c.items))
	copy(out, c.items)
	return out
}

// Lookup finds an activity of the snapshot by id.
func (c *Catalog) Lookup(id int64) (Activity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return Activity{}, false
	}
	return c.items[i], true
}

// classifyCatalogErr routes auth failures to login, 404 and 5xx answers to
// the matching error page, and everything else, including failures with
// no response at all, to the scan error page.
func classifyCatalogErr(err error) *Failure {
	if kindOf(err) == KindAuth {
		return &Failure{Reason: ReasonCatalogAuth, Dest: DestLogin, Err: err}
	}
	f := &Failure{Reason: ReasonCatalogTransport, Dest: DestScanError, Err: err}
	var ce *CallError
	if errors.As(err, &ce) {
		switch {
		case ce.Kind == KindNotFound || ce.Status == 404:
			f.Dest = DestNotFound
		case ce.Status >= 500:
			f.Dest = DestServerError
		}
	}
	return f
}
