package tracing

import (
	"bytes"
	"runtime"
	"strconv"
	"time"
)

// A Clock tells the current time in microseconds. The origin is arbitrary,
// but it must not change during the lifetime of a registry.
type Clock interface {
	Now() float64
}

// An Identifier tells which execution context is making a call.
type Identifier interface {
	ContextID() uint64
}

type monotonicClock struct {
	origin time.Time
}

// NewMonotonicClock creates a Clock that counts microseconds from the moment
// it is created.
func NewMonotonicClock() Clock {
	return monotonicClock{origin: time.Now()}
}

func (c monotonicClock) Now() float64 {
	return float64(time.Since(c.origin).Nanoseconds()) / 1e3
}

type goroutineIdentifier struct{}

// NewGoroutineIdentifier creates an Identifier that uses the id of the
// calling goroutine.
func NewGoroutineIdentifier() Identifier {
	return goroutineIdentifier{}
}

func (goroutineIdentifier) ContextID() uint64 {
	return getGoroutineID()
}

// getGoroutineID extracts the current goroutine ID from the header of
// runtime.Stack, which reads "goroutine 123 [running]:".
func getGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}

	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}

	gid, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}

	return gid
}
