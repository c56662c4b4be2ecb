package tracing

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// A list of the measurement kinds that have a dedicated color in the report.
// Any other kind is allowed and is shown with the color of KindUnknown.
const (
	KindUnknown   = "unknown"
	KindStandard  = "standard"
	KindThingworx = "thingworx"
	KindImport    = "import"
	KindProject   = "project"
)

// A ThreadID identifies the row on which an event is shown. Measurements are
// shown on the numeric id of the goroutine that took them, unless they were
// placed on a named virtual thread.
type ThreadID struct {
	Num  uint64
	Name string
}

func (t ThreadID) String() string {
	if t.Name != "" {
		return t.Name
	}

	return strconv.FormatUint(t.Num, 10)
}

// MarshalJSON encodes named threads as strings and the others as numbers.
func (t ThreadID) MarshalJSON() ([]byte, error) {
	if t.Name != "" {
		return json.Marshal(t.Name)
	}

	return strconv.AppendUint(nil, t.Num, 10), nil
}

// UnmarshalJSON accepts both the string and the number form.
func (t *ThreadID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*t = ThreadID{}
		return json.Unmarshal(data, &t.Name)
	}

	var num uint64
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}

	*t = ThreadID{Num: num}

	return nil
}

// A Measurement is a timed, possibly nested, unit of work.
type Measurement struct {
	Name       string
	File       string
	LineNumber int

	Start float64
	End   float64
	Ended bool

	Kind         string
	DelaysParent bool

	// Block is the retain count of the profiler when the measurement was
	// opened.
	Block    int
	Thread   ThreadID
	Children []*Measurement

	// Implicit counts the implicit begins that were folded into this
	// measurement and are still waiting for their FinishImplicit.
	Implicit int
}

func (m *Measurement) close(now float64) {
	m.End = now
	m.Ended = true
}

// A MeasurementOption sets an optional attribute of a measurement.
type MeasurementOption func(m *Measurement)

// WithFile records the file in which the measured code is found.
func WithFile(file string) MeasurementOption {
	return func(m *Measurement) {
		m.File = file
	}
}

// WithLineNumber records the line at which the measured code is found.
func WithLineNumber(line int) MeasurementOption {
	return func(m *Measurement) {
		m.LineNumber = line
	}
}

// WithKind sets the kind of the measurement, which selects its category and
// color in the report.
func WithKind(kind string) MeasurementOption {
	return func(m *Measurement) {
		m.Kind = kind
	}
}

// WithDelaysParent marks the measurement so that its parent is shown as
// starting only after this measurement ends.
func WithDelaysParent() MeasurementOption {
	return func(m *Measurement) {
		m.DelaysParent = true
	}
}
