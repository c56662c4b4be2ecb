package tracing

// DefaultObjectCategory is the category of objects created without one.
const DefaultObjectCategory = "object"

// A Snapshot is the state an object had from a moment in time.
type Snapshot struct {
	State     any
	Timestamp float64
}

// An Object is a named entity whose lifecycle is tracked by the profiler.
type Object struct {
	Name     string
	Category string
	Thread   string

	Created    float64
	HasCreated bool

	Destroyed    float64
	HasDestroyed bool

	Snapshots []Snapshot
}

// An ObjectOption sets an optional attribute of a tracked object.
type ObjectOption func(o *objectConfig)

type objectConfig struct {
	category string
	thread   string
}

// WithCategory sets the category of the object.
func WithCategory(category string) ObjectOption {
	return func(c *objectConfig) {
		c.category = category
	}
}

// WithThread places the object on a virtual thread instead of the thread of
// the goroutine that creates it. An empty name keeps the goroutine thread.
func WithThread(thread string) ObjectOption {
	return func(c *objectConfig) {
		if thread != "" {
			c.thread = thread
		}
	}
}

// objectTable keeps the objects of one profiler in the order they were first
// mentioned.
type objectTable struct {
	byName map[string]*Object
	order  []string
}

func newObjectTable() objectTable {
	return objectTable{byName: make(map[string]*Object)}
}

func (t *objectTable) get(name, thread string) *Object {
	o, ok := t.byName[name]
	if ok {
		return o
	}

	o = &Object{
		Name:     name,
		Category: DefaultObjectCategory,
		Thread:   thread,
	}
	t.byName[name] = o
	t.order = append(t.order, name)

	return o
}

func (t *objectTable) len() int {
	return len(t.order)
}

func (t *objectTable) each(f func(o *Object)) {
	for _, name := range t.order {
		f(t.byName[name])
	}
}

// mergeObjects combines the object tables of several profilers by object name.
// Snapshots are concatenated in profiler order. The identity of an object
// (creation time, category and thread) comes from the record that saw the
// creation; if several did, the earliest creation wins.
func mergeObjects(tables []*objectTable) []*Object {
	merged := make(map[string]*Object)
	order := make([]string, 0)

	for _, table := range tables {
		table.each(func(o *Object) {
			combined, ok := merged[o.Name]
			if !ok {
				combined = &Object{
					Name:     o.Name,
					Category: o.Category,
					Thread:   o.Thread,
				}
				merged[o.Name] = combined
				order = append(order, o.Name)
			}

			if o.HasCreated &&
				(!combined.HasCreated || o.Created < combined.Created) {
				combined.Created = o.Created
				combined.HasCreated = true
				combined.Category = o.Category
				combined.Thread = o.Thread
			}

			if o.HasDestroyed &&
				(!combined.HasDestroyed || o.Destroyed > combined.Destroyed) {
				combined.Destroyed = o.Destroyed
				combined.HasDestroyed = true
			}

			combined.Snapshots = append(combined.Snapshots, o.Snapshots...)
		})
	}

	objects := make([]*Object, 0, len(order))
	for _, name := range order {
		objects = append(objects, merged[name])
	}

	return objects
}
