package profiling

import (
	"fmt"

	"github.com/sarchlab/sessionprof/config"
	"github.com/sarchlab/sessionprof/datarecording"
	"github.com/sarchlab/sessionprof/monitoring"
	"github.com/sarchlab/sessionprof/tracing"
)

// Builder can be used to build a profiling service.
type Builder struct {
	registry  *tracing.Registry
	store     datarecording.ReportStore
	settings  config.ReportSettings
	probe     monitoring.ResourceProbe
	monitorOn bool
	samplerOn bool
}

// MakeBuilder creates a new builder that profiles the DefaultRegistry with
// the default settings.
func MakeBuilder() Builder {
	return Builder{
		registry:  tracing.DefaultRegistry,
		settings:  config.Defaults(),
		monitorOn: true,
		samplerOn: true,
	}
}

// WithRegistry sets the registry whose sessions the service controls.
func (b Builder) WithRegistry(r *tracing.Registry) Builder {
	b.registry = r
	return b
}

// WithSettings sets where reports are written.
func (b Builder) WithSettings(s config.ReportSettings) Builder {
	b.settings = s
	return b
}

// WithStore replaces the store that the settings describe.
func (b Builder) WithStore(s datarecording.ReportStore) Builder {
	b.store = s
	return b
}

// WithResourceProbe sets how the monitor and the sampler measure the
// process.
func (b Builder) WithResourceProbe(p monitoring.ResourceProbe) Builder {
	b.probe = p
	return b
}

// WithoutMonitoring sets the service to not expose the monitor.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithoutResourceSampling sets the service to not record the resource usage
// of the process.
func (b Builder) WithoutResourceSampling() Builder {
	b.samplerOn = false
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.registry == nil {
		panic("registry must not be nil")
	}

	if err := b.settings.Validate(); err != nil {
		panic(fmt.Sprintf("invalid report settings: %s", err))
	}
}

// Build builds the service.
func (b Builder) Build() *Service {
	b.parametersMustBeValid()

	s := &Service{
		registry: b.registry,
		settings: b.settings,
		store:    b.store,
	}

	if s.store == nil {
		store, err := NewStore(b.settings)
		if err != nil {
			panic(err)
		}

		s.store = store
	}

	probe := b.probe
	if probe == nil {
		probe = monitoring.NewProcessProbe()
	}

	if b.samplerOn {
		s.sampler = monitoring.NewResourceSampler(
			b.registry, probe, b.settings.SampleInterval)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().
			WithPortNumber(b.settings.MonitorPort)
		s.monitor.RegisterRegistry(b.registry)
		s.monitor.RegisterController(s)
		s.monitor.RegisterProbe(probe)

		if b.settings.Store != config.StoreSQLite {
			s.monitor.ServeReports(b.settings.Repository, b.settings.LinkPrefix)
		}
	}

	return s
}

// NewStore creates the store that the settings describe.
func NewStore(s config.ReportSettings) (datarecording.ReportStore, error) {
	switch s.Store {
	case config.StoreFile:
		return datarecording.NewFileStore(s.Repository), nil
	case config.StoreSQLite:
		return datarecording.NewSQLiteStore(s.SQLitePath)
	case config.StoreBoth:
		sqliteStore, err := datarecording.NewSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, err
		}

		return datarecording.MultiStore{
			datarecording.NewFileStore(s.Repository),
			sqliteStore,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", s.Store)
	}
}
