// Package config loads the settings that decide where and how profiling
// reports are stored.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store names accepted in ReportSettings.Store.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreBoth   = "both"
)

// ReportSettings tells where finished sessions are written and how the
// monitor is exposed.
type ReportSettings struct {
	Repository     string        `toml:"repository"`
	Path           string        `toml:"path"`
	Store          string        `toml:"store"`
	SQLitePath     string        `toml:"sqlite_path"`
	MonitorPort    int           `toml:"monitor_port"`
	SampleInterval time.Duration `toml:"sample_interval"`
	LinkPrefix     string        `toml:"link_prefix"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() ReportSettings {
	return ReportSettings{
		Repository:     "SystemRepository",
		Path:           "ProfileReports",
		Store:          StoreFile,
		SQLitePath:     "profiler_reports",
		MonitorPort:    8080,
		SampleInterval: 500 * time.Millisecond,
		LinkPrefix:     "/reports",
	}
}

// Validate checks that the settings can be used.
func (s ReportSettings) Validate() error {
	var errs []error

	if strings.TrimSpace(s.Repository) == "" {
		errs = append(errs, errors.New("repository must not be empty"))
	}

	switch s.Store {
	case StoreFile, StoreSQLite, StoreBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", s.Store))
	}

	if s.Store != StoreFile && strings.TrimSpace(s.SQLitePath) == "" {
		errs = append(errs, errors.New("sqlite path must not be empty"))
	}

	if s.MonitorPort < 0 || s.MonitorPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid monitor port %d", s.MonitorPort))
	}

	if s.SampleInterval <= 0 {
		errs = append(errs, errors.New("sample interval must be positive"))
	}

	return errors.Join(errs...)
}

// Options tells Load where to look for settings. Empty file names are
// skipped.
type Options struct {
	TOMLFile string
	EnvFile  string

	// Getenv reads the process environment. It defaults to os.Getenv.
	Getenv func(key string) string
}

// Load builds the settings from the defaults, the TOML file, the env file and
// the process environment. Later sources override earlier ones.
func Load(opts Options) (ReportSettings, error) {
	s := Defaults()

	if opts.TOMLFile != "" {
		if err := loadTOML(opts.TOMLFile, &s); err != nil {
			return ReportSettings{}, err
		}
	}

	if opts.EnvFile != "" {
		vars, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return ReportSettings{}, fmt.Errorf(
				"failed to read env file %s: %w", opts.EnvFile, err)
		}

		err = applyEnv(&s, func(key string) string { return vars[key] })
		if err != nil {
			return ReportSettings{}, fmt.Errorf("%s: %w", opts.EnvFile, err)
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if err := applyEnv(&s, getenv); err != nil {
		return ReportSettings{}, fmt.Errorf("environment: %w", err)
	}

	if err := s.Validate(); err != nil {
		return ReportSettings{}, err
	}

	return s, nil
}

type tomlSettings struct {
	Repository     *string `toml:"repository"`
	Path           *string `toml:"path"`
	Store          *string `toml:"store"`
	SQLitePath     *string `toml:"sqlite_path"`
	MonitorPort    *int    `toml:"monitor_port"`
	SampleInterval *string `toml:"sample_interval"`
	LinkPrefix     *string `toml:"link_prefix"`
}

func loadTOML(path string, s *ReportSettings) error {
	var file struct {
		Profiler tomlSettings `toml:"profiler"`
	}

	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	t := file.Profiler
	setString(&s.Repository, t.Repository)
	setString(&s.Path, t.Path)
	setString(&s.Store, t.Store)
	setString(&s.SQLitePath, t.SQLitePath)
	setString(&s.LinkPrefix, t.LinkPrefix)

	if t.MonitorPort != nil {
		s.MonitorPort = *t.MonitorPort
	}

	if t.SampleInterval != nil {
		d, err := time.ParseDuration(*t.SampleInterval)
		if err != nil {
			return fmt.Errorf("%s: sample_interval: %w", path, err)
		}

		s.SampleInterval = d
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyEnv(s *ReportSettings, getenv func(string) string) error {
	if v := getenv("PROFILER_REPOSITORY"); v != "" {
		s.Repository = v
	}

	if v := getenv("PROFILER_PATH"); v != "" {
		s.Path = v
	}

	if v := getenv("PROFILER_STORE"); v != "" {
		s.Store = strings.ToLower(v)
	}

	if v := getenv("PROFILER_SQLITE_PATH"); v != "" {
		s.SQLitePath = v
	}

	if v := getenv("PROFILER_LINK_PREFIX"); v != "" {
		s.LinkPrefix = v
	}

	if v := getenv("PROFILER_MONITOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROFILER_MONITOR_PORT: %w", err)
		}

		s.MonitorPort = port
	}

	if v := getenv("PROFILER_SAMPLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROFILER_SAMPLE_INTERVAL: %w", err)
		}

		s.SampleInterval = d
	}

	return nil
}
