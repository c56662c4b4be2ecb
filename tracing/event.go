package tracing

// Version is written in the otherData section of every report.
const Version = "BMProfiler v1.1"

// A Phase tells what kind of trace event a record is.
type Phase string

// The phases used by the profiler.
const (
	PhaseBegin           Phase = "B"
	PhaseEnd             Phase = "E"
	PhaseObjectCreated   Phase = "N"
	PhaseObjectSnapshot  Phase = "O"
	PhaseObjectDestroyed Phase = "D"
)

// A TraceEvent is one record of a report in the Chrome Trace Event Format.
// Timestamps are in microseconds.
type TraceEvent struct {
	Name  string         `json:"name"`
	Cat   string         `json:"cat"`
	Ph    Phase          `json:"ph"`
	Ts    float64        `json:"ts"`
	Pid   int            `json:"pid"`
	Tid   ThreadID       `json:"tid"`
	ID    string         `json:"id,omitempty"`
	Args  map[string]any `json:"args,omitempty"`
	Cname string         `json:"cname"`
}

// OtherData is the metadata section of a report.
type OtherData struct {
	Version string `json:"version"`
}

// A Report is the document that trace viewers load.
type Report struct {
	TraceEvents []TraceEvent `json:"traceEvents"`
	OtherData   OtherData    `json:"otherData"`
}

// An Artifact is a finished session, ready to be persisted under Name.
type Artifact struct {
	Name   string
	Report Report
}

var colorMap = map[string]string{
	KindUnknown:   "generic_work",
	KindStandard:  "cq_build_attempt_passed",
	KindThingworx: "rail_response",
	KindImport:    "cq_build_attempt_running",
	KindProject:   "detailed_memory_dump",
}

// ColorFor returns the display color of a measurement kind or object
// category.
func ColorFor(kind string) string {
	if c, ok := colorMap[kind]; ok {
		return c
	}

	return colorMap[KindUnknown]
}
