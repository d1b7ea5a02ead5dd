package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FetchState is the lifecycle of a fetcher slot.
type FetchState string

const (
	FetchPending FetchState = "pending"
	FetchReady   FetchState = "ready"
	FetchFailed  FetchState = "failed"
)

// FetchResult is the single authoritative result slot of a fetcher. Failed
// results carry the zero value.
type FetchResult[T any] struct {
	State      FetchState
	Value      T
	Err        error
	Generation uint64
	Key        string
}

// FetchFunc issues the remote request for one input tuple.
type FetchFunc[P any, T any] func(ctx context.Context, selection FilterSelection, params P) (T, error)

// FetchSnapshot is the untyped view of a fetcher used by transports/templates.
type FetchSnapshot struct {
	Name       string     `json:"name"`
	State      FetchState `json:"state"`
	Generation uint64     `json:"generation"`
	Params     any        `json:"params"`
	Value      any        `json:"value"`
	Error      string     `json:"error,omitempty"`
}

// ViewFetcher is the type-erased contract the view composition layer drives.
type ViewFetcher interface {
	Name() string
	Update(ctx context.Context, selection FilterSelection) (<-chan struct{}, bool)
	ApplyParams(ctx context.Context, raw json.RawMessage) (<-chan struct{}, bool, error)
	Snapshot() FetchSnapshot
	Watch(fn func(FetchSnapshot)) func()
	Calls() int
	Wait(ctx context.Context) error
	Close()
}

// Fetcher maps (selection, params) to remote data. Each trigger with a new
// input tuple flips the slot to pending and issues a request; responses that
// arrive after a newer trigger are discarded by generation. Listeners see
// results in generation order and must not trigger the same fetcher.
type Fetcher[P any, T any] struct {
	name      string
	fetch     FetchFunc[P, T]
	normalize func(P) P
	telemetry Telemetry

	// notifyMu is held across a slot commit and its delivery.
	notifyMu sync.Mutex

	mu         sync.Mutex
	selection  FilterSelection
	params     P
	key        string
	generation uint64
	result     FetchResult[T]
	listeners  map[int]func(FetchResult[T])
	next       int
	calls      int
	closed     bool
	inflight   int
	idle       chan struct{}
}

// NewFetcher builds a fetcher with its initial view params.
func NewFetcher[P any, T any](name string, params P, fn FetchFunc[P, T], telemetry Telemetry) *Fetcher[P, T] {
	return &Fetcher[P, T]{
		name:      name,
		fetch:     fn,
		telemetry: normalizeTelemetry(telemetry),
		params:    params,
		result:    FetchResult[T]{State: FetchPending},
		listeners: map[int]func(FetchResult[T]){},
	}
}

// WithNormalizer installs a function applied to params before they are keyed,
// so equivalent params (for example a zero horizon and the default one) share
// a request.
func (f *Fetcher[P, T]) WithNormalizer(fn func(P) P) *Fetcher[P, T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.normalize = fn
	if fn != nil {
		f.params = fn(f.params)
	}
	return f
}

// Name identifies the fetcher inside its view.
func (f *Fetcher[P, T]) Name() string {
	return f.name
}

// Params returns the params of the latest trigger.
func (f *Fetcher[P, T]) Params() P {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

// Result returns the current slot.
func (f *Fetcher[P, T]) Result() FetchResult[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Calls reports how many requests were issued.
func (f *Fetcher[P, T]) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Subscribe registers a listener for slot transitions.
func (f *Fetcher[P, T]) Subscribe(fn func(FetchResult[T])) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Watch is Subscribe for callers that only know the type-erased snapshot.
func (f *Fetcher[P, T]) Watch(fn func(FetchSnapshot)) func() {
	return f.Subscribe(func(FetchResult[T]) {
		fn(f.Snapshot())
	})
}

// Update re-triggers with a new selection and the current params.
func (f *Fetcher[P, T]) Update(ctx context.Context, selection FilterSelection) (<-chan struct{}, bool) {
	return f.trigger(ctx, func(_ FilterSelection, params P) (FilterSelection, P) {
		return selection, params
	})
}

// SetParams re-triggers with new params and the current selection.
func (f *Fetcher[P, T]) SetParams(ctx context.Context, params P) (<-chan struct{}, bool) {
	return f.trigger(ctx, func(selection FilterSelection, _ P) (FilterSelection, P) {
		return selection, params
	})
}

// ApplyParams replaces the params with a JSON document and re-triggers.
// Fields absent from the document fall back to their defaults.
func (f *Fetcher[P, T]) ApplyParams(ctx context.Context, raw json.RawMessage) (<-chan struct{}, bool, error) {
	var params P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return settled(), false, fmt.Errorf("dashboard: decode %s params: %w", f.name, err)
		}
	}
	done, started := f.SetParams(ctx, params)
	return done, started, nil
}

// Trigger issues a request for the input tuple unless it matches the tuple of
// the current slot. The returned channel closes once the request settles,
// whether its result was applied or discarded.
func (f *Fetcher[P, T]) Trigger(ctx context.Context, selection FilterSelection, params P) (<-chan struct{}, bool) {
	return f.trigger(ctx, func(FilterSelection, P) (FilterSelection, P) {
		return selection, params
	})
}

// trigger resolves the input tuple from the current one under the lock, so
// a concurrent Update and SetParams never overwrite each other's half.
func (f *Fetcher[P, T]) trigger(ctx context.Context, resolve func(FilterSelection, P) (FilterSelection, P)) (<-chan struct{}, bool) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	selection, params := resolve(f.selection, f.params)
	selection = selection.normalized()
	if f.normalize != nil {
		params = f.normalize(params)
	}
	key := FetchKey(selection, params)
	if f.closed || (f.generation > 0 && key == f.key) {
		f.mu.Unlock()
		return settled(), false
	}
	f.generation++
	gen := f.generation
	f.key = key
	f.selection = selection
	f.params = params
	f.calls++
	f.result = FetchResult[T]{State: FetchPending, Generation: gen, Key: key}
	pending := f.result
	listeners := f.listenersLocked()
	if f.inflight == 0 {
		f.idle = make(chan struct{})
	}
	f.inflight++
	f.mu.Unlock()

	notify(listeners, pending)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer f.release()
		value, err := f.fetch(ctx, selection, params)
		f.settle(ctx, gen, key, value, err)
	}()
	return done, true
}

func (f *Fetcher[P, T]) settle(ctx context.Context, gen uint64, key string, value T, err error) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	if f.closed || gen != f.generation {
		latest := f.generation
		f.mu.Unlock()
		f.telemetry.Record(ctx, "dashboard.fetch.stale", map[string]any{
			"fetcher":    f.name,
			"generation": gen,
			"latest":     latest,
		})
		return
	}
	if err != nil {
		var zero T
		f.result = FetchResult[T]{State: FetchFailed, Value: zero, Err: err, Generation: gen, Key: key}
	} else {
		f.result = FetchResult[T]{State: FetchReady, Value: value, Generation: gen, Key: key}
	}
	result := f.result
	listeners := f.listenersLocked()
	f.mu.Unlock()

	if err != nil {
		f.telemetry.Record(ctx, "dashboard.fetch.failed", map[string]any{
			"fetcher":    f.name,
			"generation": gen,
			"error":      err.Error(),
		})
	}
	notify(listeners, result)
}

// Snapshot returns the type-erased slot.
func (f *Fetcher[P, T]) Snapshot() FetchSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := FetchSnapshot{
		Name:       f.name,
		State:      f.result.State,
		Generation: f.result.Generation,
		Params:     f.params,
		Value:      f.result.Value,
	}
	if f.result.Err != nil {
		snap.Error = f.result.Err.Error()
	}
	return snap
}

func (f *Fetcher[P, T]) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	if f.inflight == 0 && f.idle != nil {
		close(f.idle)
		f.idle = nil
	}
}

// Wait blocks until every in-flight request settled or ctx is done.
func (f *Fetcher[P, T]) Wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches listeners; results arriving later are dropped.
func (f *Fetcher[P, T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.listeners = map[int]func(FetchResult[T]){}
}

func (f *Fetcher[P, T]) listenersLocked() []func(FetchResult[T]) {
	out := make([]func(FetchResult[T]), 0, len(f.listeners))
	for _, fn := range f.listeners {
		out = append(out, fn)
	}
	return out
}

func notify[T any](listeners []func(FetchResult[T]), result FetchResult[T]) {
	for _, fn := range listeners {
		fn(result)
	}
}

// FetchKey is the stable serialization of a fetcher's input tuple. Selections
// are compared as sets so reordering the same values does not change the key.
func FetchKey(selection FilterSelection, params any) string {
	payload := struct {
		Filters FilterSelection `json:"filters"`
		Params  any             `json:"params"`
	}{Filters: selection.Canonical(), Params: params}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v|%#v", selection.Canonical(), params)
	}
	return string(b)
}

func settled() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
