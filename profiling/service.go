// Package profiling provides a service that runs profiling sessions and
// saves their reports.
package profiling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/sessionprof/config"
	"github.com/sarchlab/sessionprof/datarecording"
	"github.com/sarchlab/sessionprof/monitoring"
	"github.com/sarchlab/sessionprof/tracing"
	"golang.org/x/sync/errgroup"
)

// A Service begins and finishes sessions of a registry and saves the
// resulting reports.
type Service struct {
	registry *tracing.Registry
	store    datarecording.ReportStore
	settings config.ReportSettings
	monitor  *monitoring.Monitor
	sampler  *monitoring.ResourceSampler
}

// Registry returns the registry controlled by the service.
func (s *Service) Registry() *tracing.Registry {
	return s.registry
}

// Monitor returns the monitor of the service, or nil if monitoring is off.
func (s *Service) Monitor() *monitoring.Monitor {
	return s.monitor
}

// BeginProfiling starts a session.
func (s *Service) BeginProfiling() error {
	return s.registry.BeginSession()
}

// FinishProfiling ends the running session, saves its report and returns
// where the report can be found.
func (s *Service) FinishProfiling() (monitoring.Summary, error) {
	artifact, err := s.registry.EndSession()
	if err != nil {
		return monitoring.Summary{}, err
	}

	err = s.store.SaveReport(s.settings.Path, artifact.Name, artifact.Report)
	if err != nil {
		return monitoring.Summary{}, fmt.Errorf(
			"failed to save report %s: %w", artifact.Name, err)
	}

	return monitoring.Summary{
		Name:   artifact.Name,
		Link:   s.Link(artifact.Name),
		Events: len(artifact.Report.TraceEvents),
	}, nil
}

// Link returns the address under which a saved report is served.
func (s *Service) Link(name string) string {
	parts := []string{strings.TrimRight(s.settings.LinkPrefix, "/")}

	if p := strings.Trim(s.settings.Path, "/"); p != "" {
		parts = append(parts, p)
	}

	parts = append(parts, name)

	return strings.Join(parts, "/")
}

// Terminate finishes and saves the running session, if any, and then closes
// the store. It is meant to run once when the program exits.
func (s *Service) Terminate() (monitoring.Summary, bool, error) {
	var (
		summary  monitoring.Summary
		finished bool
		err      error
	)

	if s.registry.IsProfiling() {
		summary, err = s.FinishProfiling()
		finished = err == nil
	}

	if closeErr := s.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	return summary, finished, err
}

// Close closes the store if it holds resources. No report can be saved
// afterwards.
func (s *Service) Close() error {
	c, ok := s.store.(io.Closer)
	if !ok {
		return nil
	}

	if err := c.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	return nil
}

// Run serves the monitor and samples resources until the context is
// cancelled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.monitor != nil {
		g.Go(func() error {
			return s.monitor.ListenAndServe(gctx)
		})
	}

	if s.sampler != nil {
		g.Go(func() error {
			return s.sampler.Run(gctx)
		})
	}

	return g.Wait()
}
