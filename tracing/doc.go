// Package tracing records nested measurements and tracked objects per
// goroutine and exports a finished session as a Chrome Trace Event Format
// report.
//
// # Sessions
//
// A Registry owns at most one active session. Between BeginSession and
// EndSession, every goroutine that asks for its profiler through Current gets
// its own Profiler. Outside a session, Current returns the shared Inactive
// profiler, so instrumented code never needs to check whether profiling is on.
//
// # Measurements
//
// A profiler is activated with Retain and deactivated with Release. Begin and
// Finish open and close measurements, which nest by call order. Release
// closes every measurement opened since the matching Retain, so a block that
// forgets to call Finish is still closed correctly:
//
//	p := tracing.Current().Retain()
//	defer p.Release()
//
//	p.Begin("load", tracing.WithKind(tracing.KindStandard))
//	// ...
//	p.Finish()
//
// # Tracked objects
//
// CreateObject, UpdateObject and DestroyObject record the lifecycle of a
// named object. An object may be updated or destroyed from a goroutine other
// than the one that created it; the records are merged by name when the
// session ends.
//
// # Hooks
//
// The registry is hookable. Hooks registered with AcceptHook are invoked at
// HookPosSessionBegin and HookPosSessionEnd; the latter carries the finished
// Artifact as the hook item.
package tracing
