package tracing

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// A Profiler records the measurements and tracked objects of one goroutine.
// Profiler methods never fail: unbalanced calls are ignored so that a misuse of
// the profiler never disturbs the profiled program.
type Profiler interface {
	// Retain activates the profiler and starts a measurement block. Each
	// Retain must be paired with a Release.
	Retain() Profiler

	// Release ends the innermost measurement block, closing every
	// measurement that was started in it and is still open.
	Release()

	// Stop releases every measurement block.
	Stop()

	// Begin starts a measurement nested in the current one.
	Begin(name string, opts ...MeasurementOption)

	// BeginImplicit starts a measurement only if none is open. Otherwise the
	// call is folded into the open measurement.
	BeginImplicit(name string, opts ...MeasurementOption)

	// BeginSynthetic starts a measurement shown on the given virtual thread.
	// An empty kind means KindUnknown and an empty thread means the current
	// goroutine.
	BeginSynthetic(name, kind, thread string)

	// Finish closes the current measurement.
	Finish()

	// FinishImplicit undoes one folded BeginImplicit, or closes the current
	// measurement if nothing was folded into it.
	FinishImplicit()

	// CreateObject records the creation of a tracked object.
	CreateObject(name string, opts ...ObjectOption)

	// UpdateObject records a new state of a tracked object. The state should
	// be encodable as JSON.
	UpdateObject(name string, state any)

	// DestroyObject records the destruction of a tracked object.
	DestroyObject(name string)

	// Active tells whether calls on this profiler are recorded.
	Active() bool
}

// Inactive is the profiler handed out while no session is running.
var Inactive Profiler = inactiveProfiler{}

type inactiveProfiler struct{}

func (p inactiveProfiler) Retain() Profiler                         { return p }
func (inactiveProfiler) Release()                                   {}
func (inactiveProfiler) Stop()                                      {}
func (inactiveProfiler) Begin(string, ...MeasurementOption)         {}
func (inactiveProfiler) BeginImplicit(string, ...MeasurementOption) {}
func (inactiveProfiler) BeginSynthetic(string, string, string)      {}
func (inactiveProfiler) Finish()                                    {}
func (inactiveProfiler) FinishImplicit()                            {}
func (inactiveProfiler) CreateObject(string, ...ObjectOption)       {}
func (inactiveProfiler) UpdateObject(string, any)                   {}
func (inactiveProfiler) DestroyObject(string)                       {}
func (inactiveProfiler) Active() bool                               { return false }

// activeProfiler is driven by a single goroutine. Its mutex only becomes
// contended while the registry exports a session.
type activeProfiler struct {
	mu sync.Mutex

	registry   *Registry
	generation uint64
	thread     uint64
	cleared    atomic.Bool

	retainCount int
	stack       []*Measurement
	numRoots    int
	objects     objectTable
}

func newActiveProfiler(
	r *Registry,
	generation uint64,
	thread uint64,
) *activeProfiler {
	return &activeProfiler{
		registry:   r,
		generation: generation,
		thread:     thread,
		objects:    newObjectTable(),
	}
}

func (p *activeProfiler) now() float64 {
	return p.registry.clock.Now()
}

func (p *activeProfiler) threadName() string {
	return strconv.FormatUint(p.thread, 10)
}

func (p *activeProfiler) current() *Measurement {
	if len(p.stack) == 0 {
		return nil
	}

	return p.stack[len(p.stack)-1]
}

func (p *activeProfiler) pop() {
	p.stack[len(p.stack)-1] = nil
	p.stack = p.stack[:len(p.stack)-1]
}

func (p *activeProfiler) Active() bool {
	return !p.cleared.Load()
}

func (p *activeProfiler) Retain() Profiler {
	if p.cleared.Load() {
		return p
	}

	p.mu.Lock()
	p.retainCount++
	p.mu.Unlock()

	return p
}

func (p *activeProfiler) Release() {
	if p.cleared.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	block := p.retainCount
	if p.retainCount > 0 {
		p.retainCount--
	}

	now := p.now()
	for m := p.current(); m != nil; m = p.current() {
		if m.Block < block {
			break
		}

		m.close(now)
		p.pop()
	}
}

func (p *activeProfiler) Stop() {
	for p.Active() && p.retained() {
		p.Release()
	}
}

func (p *activeProfiler) retained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.retainCount > 0
}

func (p *activeProfiler) Begin(name string, opts ...MeasurementOption) {
	if p.cleared.Load() {
		return
	}

	m := &Measurement{
		Name:   name,
		Thread: ThreadID{Num: p.thread},
	}
	for _, opt := range opts {
		opt(m)
	}

	p.push(m)
}

func (p *activeProfiler) BeginImplicit(
	name string,
	opts ...MeasurementOption,
) {
	if p.cleared.Load() {
		return
	}

	p.mu.Lock()
	if m := p.current(); m != nil {
		m.Implicit++
		p.mu.Unlock()

		return
	}
	p.mu.Unlock()

	p.Begin(name, opts...)
}

func (p *activeProfiler) BeginSynthetic(name, kind, thread string) {
	if p.cleared.Load() {
		return
	}

	if kind == "" {
		kind = KindUnknown
	}

	m := &Measurement{
		Name:   name,
		Kind:   kind,
		Thread: ThreadID{Num: p.thread, Name: thread},
	}

	p.push(m)
}

// push makes m the current measurement. A root measurement is registered
// after the profiler lock is released, as the registry takes its own lock
// before the locks of the profilers.
func (p *activeProfiler) push(m *Measurement) {
	p.mu.Lock()

	m.Block = p.retainCount
	m.Start = p.now()

	parent := p.current()
	if parent != nil {
		parent.Children = append(parent.Children, m)
	} else {
		p.numRoots++
	}

	p.stack = append(p.stack, m)

	p.mu.Unlock()

	if parent == nil {
		p.registry.addRoot(p.generation, m)
	}
}

func (p *activeProfiler) Finish() {
	if p.cleared.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.finishCurrent()
}

func (p *activeProfiler) finishCurrent() {
	m := p.current()
	if m == nil {
		return
	}

	m.close(p.now())
	p.pop()
}

func (p *activeProfiler) FinishImplicit() {
	if p.cleared.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.current()
	if m == nil {
		return
	}

	if m.Implicit > 0 {
		m.Implicit--
		return
	}

	p.finishCurrent()
}

func (p *activeProfiler) CreateObject(name string, opts ...ObjectOption) {
	if p.cleared.Load() {
		return
	}

	cfg := objectConfig{
		category: DefaultObjectCategory,
		thread:   p.threadName(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.objects.get(name, p.threadName())
	if o.HasCreated {
		return
	}

	o.Created = p.now()
	o.HasCreated = true
	o.Category = cfg.category
	o.Thread = cfg.thread
}

func (p *activeProfiler) UpdateObject(name string, state any) {
	if p.cleared.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.objects.get(name, p.threadName())
	o.Snapshots = append(o.Snapshots, Snapshot{
		State:     state,
		Timestamp: p.now(),
	})
}

func (p *activeProfiler) DestroyObject(name string) {
	if p.cleared.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.objects.get(name, p.threadName())
	if o.HasDestroyed {
		return
	}

	o.Destroyed = p.now()
	o.HasDestroyed = true
}

// info describes the profiler for live inspection. The caller must hold the
// profiler lock.
func (p *activeProfiler) info() ProfilerInfo {
	open := make([]string, 0, len(p.stack))
	for _, m := range p.stack {
		open = append(open, m.Name)
	}

	return ProfilerInfo{
		Thread:      p.thread,
		RetainCount: p.retainCount,
		Open:        open,
		Roots:       p.numRoots,
		Objects:     p.objects.len(),
	}
}
