package tracing

import (
	"encoding/json"
	"math"
)

// delayEpsilon is added to a delayed begin timestamp so that the begin event
// sorts after the end event of the child that delayed it.
const delayEpsilon = 0.001

const defaultMeasurementCategory = "service"

// ExportMeasurement creates the begin and end events of a measurement and of
// all its children. If the measurement delays its parent and has ended, it
// also returns its end time and true.
func ExportMeasurement(m *Measurement) (
	events []TraceEvent,
	delayEnd float64,
	delays bool,
) {
	return appendMeasurementEvents(nil, m)
}

func appendMeasurementEvents(
	events []TraceEvent,
	m *Measurement,
) ([]TraceEvent, float64, bool) {
	beginIndex := len(events)
	events = append(events, measurementEvent(m, PhaseBegin, m.Start))

	maxDelay := 0.0
	delayed := false

	for _, child := range m.Children {
		var (
			childDelay float64
			ok         bool
		)

		events, childDelay, ok = appendMeasurementEvents(events, child)
		if ok && (!delayed || childDelay > maxDelay) {
			maxDelay = childDelay
			delayed = true
		}
	}

	if delayed {
		events[beginIndex].Ts = math.Max(m.Start, maxDelay) + delayEpsilon
	}

	end := m.Start
	if m.Ended {
		end = m.End
	}

	// A delayed begin may pass the recorded end.
	end = math.Max(end, events[beginIndex].Ts)

	events = append(events, measurementEvent(m, PhaseEnd, end))

	if m.DelaysParent && m.Ended {
		return events, m.End, true
	}

	return events, 0, false
}

func measurementEvent(m *Measurement, ph Phase, ts float64) TraceEvent {
	cat := m.Kind
	if cat == "" {
		cat = defaultMeasurementCategory
	}

	return TraceEvent{
		Name:  m.Name,
		Cat:   cat,
		Ph:    ph,
		Ts:    ts,
		Pid:   0,
		Tid:   m.Thread,
		Args:  measurementArgs(m),
		Cname: ColorFor(m.Kind),
	}
}

func measurementArgs(m *Measurement) map[string]any {
	if m.File == "" && m.LineNumber == 0 {
		return nil
	}

	args := make(map[string]any, 2)
	if m.File != "" {
		args["file"] = m.File
	}

	if m.LineNumber != 0 {
		args["lineNumber"] = m.LineNumber
	}

	return args
}

// ExportObject creates the new, snapshot and delete events of an object. An
// object without a creation time is created at fallback. An object that was
// never destroyed is destroyed at now. Snapshots whose state cannot be
// encoded as JSON are left out.
func ExportObject(o *Object, fallback, now float64) []TraceEvent {
	events := make([]TraceEvent, 0, len(o.Snapshots)+2)

	created := fallback
	if o.HasCreated {
		created = o.Created
	}

	events = append(events, objectEvent(o, PhaseObjectCreated, created))

	for _, s := range o.Snapshots {
		state, ok := sanitizeState(s.State)
		if !ok {
			continue
		}

		e := objectEvent(o, PhaseObjectSnapshot, s.Timestamp)
		e.Args = map[string]any{"snapshot": state}
		events = append(events, e)
	}

	destroyed := now
	if o.HasDestroyed {
		destroyed = o.Destroyed
	}

	events = append(events, objectEvent(o, PhaseObjectDestroyed, destroyed))

	return events
}

func objectEvent(o *Object, ph Phase, ts float64) TraceEvent {
	return TraceEvent{
		Name:  o.Name,
		Cat:   o.Category,
		Ph:    ph,
		Ts:    ts,
		Pid:   0,
		Tid:   ThreadID{Name: o.Thread},
		ID:    o.Name,
		Cname: ColorFor(o.Category),
	}
}

// sanitizeState converts a state into plain JSON data. States that fail to
// encode, including ones whose marshaler panics, are reported as not ok.
func sanitizeState(state any) (plain any, ok bool) {
	defer func() {
		if recover() != nil {
			plain, ok = nil, false
		}
	}()

	data, err := json.Marshal(state)
	if err != nil {
		return nil, false
	}

	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, false
	}

	return plain, true
}

// earliestTimestamp returns the smallest timestamp among events, or 0 if
// there are none.
func earliestTimestamp(events []TraceEvent) float64 {
	if len(events) == 0 {
		return 0
	}

	earliest := events[0].Ts
	for _, e := range events[1:] {
		if e.Ts < earliest {
			earliest = e.Ts
		}
	}

	return earliest
}
