package monitoring

import (
	"context"
	"os"
	"time"

	"github.com/sarchlab/sessionprof/tracing"
	"github.com/shirou/gopsutil/process"
)

// Names under which the sampler records the process.
const (
	ProcessObjectName     = "process"
	ProcessObjectCategory = "resource"
	ProcessObjectThread   = "monitor"
)

// A ResourceSample is the resource usage of the process at one moment.
type ResourceSample struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

// A ResourceProbe measures the resource usage of the process.
type ResourceProbe interface {
	Sample() (ResourceSample, error)
}

type processProbe struct {
	pid int32
}

// NewProcessProbe creates a probe of the current process.
func NewProcessProbe() ResourceProbe {
	return processProbe{pid: int32(os.Getpid())}
}

func (p processProbe) Sample() (ResourceSample, error) {
	proc, err := process.NewProcess(p.pid)
	if err != nil {
		return ResourceSample{}, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return ResourceSample{}, err
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		return ResourceSample{}, err
	}

	return ResourceSample{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	}, nil
}

// ResourceSampler records the resource usage of the process as snapshots of
// a tracked object while a session is running. It is a hook of the registry
// so that a sample is taken as soon as a session begins.
type ResourceSampler struct {
	registry *tracing.Registry
	probe    ResourceProbe
	interval time.Duration
	wake     chan struct{}

	current tracing.Profiler
}

// NewResourceSampler creates a sampler and hooks it to the registry.
func NewResourceSampler(
	r *tracing.Registry,
	probe ResourceProbe,
	interval time.Duration,
) *ResourceSampler {
	if interval <= 0 {
		panic("sampling interval must be positive")
	}

	s := &ResourceSampler{
		registry: r,
		probe:    probe,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}

	r.AcceptHook(s)

	return s
}

// Func takes a sample at the beginning of every session.
func (s *ResourceSampler) Func(ctx tracing.HookCtx) {
	if ctx.Pos != tracing.HookPosSessionBegin {
		return
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run samples until the context is cancelled.
func (s *ResourceSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.wake:
		}

		s.sample()
	}
}

func (s *ResourceSampler) sample() {
	if !s.registry.IsProfiling() {
		return
	}

	p := s.registry.Current()
	if !p.Active() {
		return
	}

	sample, err := s.probe.Sample()
	if err != nil {
		return
	}

	if p != s.current {
		s.current = p
		p.CreateObject(ProcessObjectName,
			tracing.WithCategory(ProcessObjectCategory),
			tracing.WithThread(ProcessObjectThread))
	}

	p.UpdateObject(ProcessObjectName, sample)
}
