package tracing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Errors returned when a session is started or finished at the wrong time.
var (
	ErrSessionAlreadyActive = errors.New(
		"unable to start a profiling session because one is already in progress")
	ErrNoActiveSession = errors.New(
		"unable to finish the profiling session because there isn't one started")
)

// ProfilerInfo describes a live profiler.
type ProfilerInfo struct {
	Thread      uint64   `json:"thread"`
	RetainCount int      `json:"retain_count"`
	Open        []string `json:"open"`
	Roots       int      `json:"roots"`
	Objects     int      `json:"objects"`
}

// A Registry owns a profiling session: the profilers of all goroutines and
// the root measurements they took.
type Registry struct {
	HookableBase

	clock      Clock
	identifier Identifier
	wallClock  func() time.Time
	version    string

	mu         sync.Mutex
	profiling  bool
	generation uint64
	profilers  []*activeProfiler
	roots      []*Measurement

	// locals maps a context id to the profiler of that context.
	locals sync.Map
}

// IsProfiling tells whether a session is running.
func (r *Registry) IsProfiling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.profiling
}

// Current returns the profiler of the calling goroutine. While no session is
// running it returns Inactive.
func (r *Registry) Current() Profiler {
	id := r.identifier.ContextID()

	if v, ok := r.locals.Load(id); ok {
		p := v.(*activeProfiler)
		if !p.cleared.Load() {
			return p
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.profiling {
		return Inactive
	}

	p := newActiveProfiler(r, r.generation, id)
	r.profilers = append(r.profilers, p)
	r.locals.Store(id, p)

	return p
}

// BeginSession starts a profiling session. It fails with
// ErrSessionAlreadyActive if a session is already running.
func (r *Registry) BeginSession() error {
	r.mu.Lock()

	if r.profiling {
		r.mu.Unlock()
		return ErrSessionAlreadyActive
	}

	r.reset()
	r.profiling = true

	r.mu.Unlock()

	r.InvokeHook(HookCtx{
		Domain: r,
		Pos:    HookPosSessionBegin,
	})

	return nil
}

// closeSession exports the events of the running session and resets the
// registry. The registry and profiler locks are released and the session is
// ended even if exporting panics.
func (r *Registry) closeSession() (Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.profiling {
		return Artifact{}, ErrNoActiveSession
	}

	profilers := r.profilers
	for _, p := range profilers {
		p.mu.Lock()
	}

	defer func() {
		for _, p := range profilers {
			p.cleared.Store(true)
			p.mu.Unlock()
		}

		r.reset()
		r.profiling = false
	}()

	events := r.exportEvents()

	return Artifact{
		Name: fmt.Sprintf("trace-%d.json", r.wallClock().UnixMilli()),
		Report: Report{
			TraceEvents: events,
			OtherData:   OtherData{Version: r.version},
		},
	}, nil
}

// EndSession finishes the running session and returns its report. It fails
// with ErrNoActiveSession if no session is running. Measurements that are
// still open are exported with the data collected so far, and the profilers
// that took them stop recording.
func (r *Registry) EndSession() (Artifact, error) {
	artifact, err := r.closeSession()
	if err != nil {
		return Artifact{}, err
	}

	r.InvokeHook(HookCtx{
		Domain: r,
		Pos:    HookPosSessionEnd,
		Item:   artifact,
	})

	return artifact, nil
}

// exportEvents must be called with the registry lock and the locks of all
// profilers held.
func (r *Registry) exportEvents() []TraceEvent {
	events := make([]TraceEvent, 0)

	for _, m := range r.roots {
		events, _, _ = appendMeasurementEvents(events, m)
	}

	tables := make([]*objectTable, 0, len(r.profilers))
	for _, p := range r.profilers {
		tables = append(tables, &p.objects)
	}

	now := r.clock.Now()
	earliest := earliestTimestamp(events)
	for _, o := range mergeObjects(tables) {
		objectEvents := ExportObject(o, earliest, now)
		if len(events) == 0 {
			earliest = earliestTimestamp(objectEvents)
		} else {
			earliest = math.Min(earliest, earliestTimestamp(objectEvents))
		}

		events = append(events, objectEvents...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Ts < events[j].Ts
	})

	return events
}

// reset must be called with the registry lock held.
func (r *Registry) reset() {
	for _, p := range r.profilers {
		p.cleared.Store(true)
	}

	r.profilers = nil
	r.roots = nil
	r.locals.Clear()
	r.generation++
}

func (r *Registry) addRoot(generation uint64, m *Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.profiling || generation != r.generation {
		return
	}

	r.roots = append(r.roots, m)
}

// Profilers describes the profilers of the running session in the order they
// were created.
func (r *Registry) Profilers() []ProfilerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]ProfilerInfo, 0, len(r.profilers))
	for _, p := range r.profilers {
		p.mu.Lock()
		infos = append(infos, p.info())
		p.mu.Unlock()
	}

	return infos
}

// Profiler describes the profiler of the given goroutine in the running
// session.
func (r *Registry) Profiler(thread uint64) (ProfilerInfo, bool) {
	for _, info := range r.Profilers() {
		if info.Thread == thread {
			return info, true
		}
	}

	return ProfilerInfo{}, false
}

// RegistryBuilder can build registries.
type RegistryBuilder struct {
	clock      Clock
	identifier Identifier
	wallClock  func() time.Time
	version    string
}

// MakeRegistryBuilder creates a RegistryBuilder with the monotonic clock, the
// goroutine identifier and the wall clock of the host.
func MakeRegistryBuilder() RegistryBuilder {
	return RegistryBuilder{
		clock:      NewMonotonicClock(),
		identifier: NewGoroutineIdentifier(),
		wallClock:  time.Now,
		version:    Version,
	}
}

// WithClock sets the clock that timestamps events.
func (b RegistryBuilder) WithClock(c Clock) RegistryBuilder {
	b.clock = c
	return b
}

// WithIdentifier sets how the registry tells execution contexts apart.
func (b RegistryBuilder) WithIdentifier(i Identifier) RegistryBuilder {
	b.identifier = i
	return b
}

// WithWallClock sets the clock used to name artifacts.
func (b RegistryBuilder) WithWallClock(now func() time.Time) RegistryBuilder {
	b.wallClock = now
	return b
}

// WithVersion sets the version written into reports.
func (b RegistryBuilder) WithVersion(version string) RegistryBuilder {
	b.version = version
	return b
}

func (b RegistryBuilder) parametersMustBeValid() {
	if b.clock == nil {
		panic("clock must not be nil")
	}

	if b.identifier == nil {
		panic("identifier must not be nil")
	}

	if b.wallClock == nil {
		panic("wall clock must not be nil")
	}
}

// Build creates a new Registry with no running session.
func (b RegistryBuilder) Build() *Registry {
	b.parametersMustBeValid()

	return &Registry{
		clock:      b.clock,
		identifier: b.identifier,
		wallClock:  b.wallClock,
		version:    b.version,
	}
}
