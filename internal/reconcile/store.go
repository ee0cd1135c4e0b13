package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/metricsource"
)

// SignalSpec binds a named query to the entity signal it feeds.
type SignalSpec struct {
	Query  string
	Signal string
	Scale  Scale
	// Presence marks the query whose successful result is the authoritative
	// set of live entities.
	Presence bool
}

// Report summarizes one merge pass.
type Report struct {
	// Entities is a sorted copy of every entity held after the pass.
	Entities []Entity
	// Failures names exactly the queries that failed, in result order.
	Failures []errors.Failure
	// Observed lists the ids that received at least one sample, sorted.
	Observed []string
	// Dropped counts samples that resolved to no identity.
	Dropped int
	// Collisions lists ids that more than one sample of a single query
	// resolved to. Only the first such sample was merged.
	Collisions []string
	// Removed lists ids deleted because the presence query succeeded
	// without them.
	Removed []string
	// PresenceOK is set when a presence query ran and succeeded.
	PresenceOK bool
}

// Store owns the entity map of one view. Merge is the only writer.
type Store struct {
	mu       sync.RWMutex
	scheme   Scheme
	specs    map[string]SignalSpec
	derived  []DerivedPercent
	entities map[string]*Entity
	now      func() time.Time
	log      logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDerived replaces the derived percentage rules.
func WithDerived(rules ...DerivedPercent) Option {
	return func(s *Store) { s.derived = rules }
}

// WithLogger sets the store's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock sets the time source used for samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store for scheme fed by specs.
func NewStore(scheme Scheme, specs []SignalSpec, opts ...Option) *Store {
	s := &Store{
		scheme:   scheme,
		specs:    make(map[string]SignalSpec, len(specs)),
		derived:  DefaultDerived,
		entities: make(map[string]*Entity),
		now:      time.Now,
		log:      logger.Noop(),
	}
	for _, spec := range specs {
		if spec.Signal == "" {
			spec.Signal = spec.Query
		}
		s.specs[spec.Query] = spec
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the entity kind the store holds.
func (s *Store) Kind() Kind {
	return s.scheme.Kind()
}

// Merge folds one cycle's query results into the entity map. Failed
// results contribute no samples and are reported by name; they never
// abort the pass. Derived signals are computed only after every result
// has been merged.
func (s *Store) Merge(results []metricsource.Result) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep Report
	observed := make(map[string]bool)
	collided := make(map[string]bool)

	// The presence result goes first so it can gate entity creation.
	ordered := make([]metricsource.Result, 0, len(results))
	var present map[string]bool
	for _, r := range results {
		if spec, ok := s.specs[r.Name]; ok && spec.Presence {
			ordered = append([]metricsource.Result{r}, ordered...)
			continue
		}
		ordered = append(ordered, r)
	}

	for _, r := range results {
		if r.Err != nil {
			rep.Failures = append(rep.Failures, errors.NewFailure(r.Name, r.Err))
		}
	}

	for _, r := range ordered {
		if r.Err != nil {
			continue
		}
		spec, ok := s.specs[r.Name]
		if !ok {
			s.log.Warn("ignoring result for unknown query %q", r.Name)
			continue
		}
		if spec.Presence {
			rep.PresenceOK = true
			present = make(map[string]bool, len(r.Samples))
		}

		seen := make(map[string]bool, len(r.Samples))
		for _, sample := range r.Samples {
			id, ok := s.scheme.Identify(sample.Labels)
			if !ok {
				rep.Dropped++
				continue
			}
			if seen[id.ID] {
				if !collided[id.ID] {
					collided[id.ID] = true
					rep.Collisions = append(rep.Collisions, id.ID)
				}
				s.log.Warn("[%s] query %s: more than one sample resolved to %s (fallback key: %t), keeping the first",
					errors.ErrIdentity, r.Name, id.ID, id.Fallback)
				continue
			}
			seen[id.ID] = true

			if spec.Presence {
				present[id.ID] = true
			} else if present != nil && !present[id.ID] {
				continue
			}

			s.apply(id, spec, sample, !observed[id.ID])
			observed[id.ID] = true
		}
	}

	if rep.Dropped > 0 {
		s.log.Debug("[%s] dropped %d samples with no identity", errors.ErrIdentity, rep.Dropped)
	}

	for id, e := range s.entities {
		if !observed[id] {
			e.Stale = true
			continue
		}
		e.Stale = false
		for _, rule := range s.derived {
			rule.apply(e)
		}
	}

	if present != nil {
		for id := range s.entities {
			if !present[id] {
				delete(s.entities, id)
				rep.Removed = append(rep.Removed, id)
			}
		}
		sort.Strings(rep.Removed)
	}

	for id := range observed {
		if _, ok := s.entities[id]; ok {
			rep.Observed = append(rep.Observed, id)
		}
	}
	sort.Strings(rep.Observed)
	sort.Strings(rep.Collisions)

	rep.Entities = s.snapshotLocked()
	return rep
}

// apply merges one sample into its entity, creating the entity if needed.
// first is set for the entity's first sample of the pass; LastUpdated only
// reflects samples of the current pass.
func (s *Store) apply(id Identity, spec SignalSpec, sample metricsource.Sample, first bool) {
	placeholders := s.scheme.Placeholders()

	e, ok := s.entities[id.ID]
	if !ok {
		e = &Entity{
			ID:          id.ID,
			Kind:        s.scheme.Kind(),
			GroupKey:    placeholders.GroupKey,
			DisplayName: placeholders.DisplayName,
			Signals:     make(map[string]Signal),
		}
		s.entities[id.ID] = e
	}
	if first {
		e.LastUpdated = 0
	}

	backfill(&e.GroupKey, id.Labels.GroupKey, placeholders.GroupKey)
	backfill(&e.DisplayName, id.Labels.DisplayName, placeholders.DisplayName)
	backfill(&e.Model, id.Labels.Model, placeholders.Model)
	backfill(&e.Index, id.Labels.Index, placeholders.Index)

	ts := sample.TimestampMs
	if ts == 0 {
		ts = s.now().UnixMilli()
	}
	e.Signals[spec.Signal] = Signal{Value: spec.Scale.Normalize(sample.Value), TimestampMs: ts}
	if ts > e.LastUpdated {
		e.LastUpdated = ts
	}
}

// Entities returns a sorted copy of every entity.
func (s *Store) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns a copy of one entity.
func (s *Store) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Len returns the number of entities held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Reset drops every entity. Views call it when their scope changes.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[string]*Entity)
}

func (s *Store) snapshotLocked() []Entity {
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.clone())
	}
	Sort(out)
	return out
}
