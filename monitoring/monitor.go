// Package monitoring exposes a running profiler over HTTP so that sessions
// can be started, finished and inspected from outside the process.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/sessionprof/tracing"
	"github.com/syifan/goseth"
)

const maxProfileSeconds = 30

// Summary describes a finished session that has been saved.
type Summary struct {
	Name   string `json:"name"`
	Link   string `json:"link"`
	Events int    `json:"events"`
}

// A Controller begins and finishes sessions on behalf of the monitor.
type Controller interface {
	BeginProfiling() error
	FinishProfiling() (Summary, error)
}

// Monitor serves the profiling control surface over HTTP.
type Monitor struct {
	registry   *tracing.Registry
	controller Controller
	probe      ResourceProbe
	reportDir  string
	linkPrefix string
	portNumber int
}

// NewMonitor creates a new Monitor that inspects the DefaultRegistry and
// probes the resources of the current process.
func NewMonitor() *Monitor {
	return &Monitor{
		registry:   tracing.DefaultRegistry,
		probe:      NewProcessProbe(),
		linkPrefix: "/reports",
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterRegistry sets the registry whose profilers are inspected.
func (m *Monitor) RegisterRegistry(r *tracing.Registry) {
	m.registry = r
}

// RegisterController sets what begins and finishes sessions.
func (m *Monitor) RegisterController(c Controller) {
	m.controller = c
}

// RegisterProbe sets how the resources of the process are measured.
func (m *Monitor) RegisterProbe(p ResourceProbe) {
	m.probe = p
}

// ServeReports serves the files below dir under the link prefix.
func (m *Monitor) ServeReports(dir, linkPrefix string) {
	m.reportDir = dir
	m.linkPrefix = linkPrefix
}

// Handler returns the HTTP routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/profiling/begin", m.beginProfiling).Methods("POST")
	r.HandleFunc("/api/profiling/finish", m.finishProfiling).Methods("POST")
	r.HandleFunc("/api/profiling/status", m.status).Methods("GET")
	r.HandleFunc("/api/profilers", m.listProfilers).Methods("GET")
	r.HandleFunc("/api/profiler/{tid}", m.profilerDetails).Methods("GET")
	r.HandleFunc("/api/resource", m.listResources).Methods("GET")
	r.HandleFunc("/api/cpuprofile", m.collectProfile).Methods("GET")

	if m.reportDir != "" {
		prefix := m.linkPrefix + "/"
		r.PathPrefix(prefix).Handler(
			http.StripPrefix(prefix, http.FileServer(http.Dir(m.reportDir))))
	}

	return r
}

// ListenAndServe serves the monitor until the context is cancelled.
func (m *Monitor) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(m.listen())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (m *Monitor) listen() net.Listener {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	dieOnErr(err)

	fmt.Fprintf(
		os.Stderr,
		"Monitoring profiler with http://localhost:%d\n",
		listener.Addr().(*net.TCPAddr).Port)

	return listener
}

func (m *Monitor) beginProfiling(w http.ResponseWriter, _ *http.Request) {
	if m.controllerMissing(w) {
		return
	}

	err := m.controller.BeginProfiling()
	if errors.Is(err, tracing.ErrSessionAlreadyActive) {
		writeError(w, http.StatusConflict, err)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) finishProfiling(w http.ResponseWriter, _ *http.Request) {
	if m.controllerMissing(w) {
		return
	}

	summary, err := m.controller.FinishProfiling()
	if errors.Is(err, tracing.ErrNoActiveSession) {
		writeError(w, http.StatusConflict, err)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, summary)
}

func (m *Monitor) controllerMissing(w http.ResponseWriter) bool {
	if m.controller != nil {
		return false
	}

	writeError(w, http.StatusServiceUnavailable,
		errors.New("no session controller registered"))

	return true
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"profiling\":%t}", m.registry.IsProfiling())
}

func (m *Monitor) listProfilers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.registry.Profilers())
}

func (m *Monitor) profilerDetails(w http.ResponseWriter, r *http.Request) {
	tid, err := strconv.ParseUint(mux.Vars(r)["tid"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	info, found := m.registry.Profiler(tid)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Profiler not found"))
		dieOnErr(err)

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&info)
	serializer.SetMaxDepth(2)
	err = serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	sample, err := m.probe.Sample()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, sample)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	seconds := 1
	if s := r.URL.Query().Get("seconds"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxProfileSeconds {
			writeError(w, http.StatusBadRequest,
				fmt.Errorf("seconds must be between 1 and %d", maxProfileSeconds))
			return
		}

		seconds = n
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	select {
	case <-time.After(time.Duration(seconds) * time.Second):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	fmt.Fprintf(w, "Error: %s", err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
