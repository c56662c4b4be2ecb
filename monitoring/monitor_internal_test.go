package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/sessionprof/tracing"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Monitor", func() {
	var (
		mockCtrl   *gomock.Controller
		controller *MockController
		probe      *MockResourceProbe
		registry   *tracing.Registry
		m          *Monitor
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		controller = NewMockController(mockCtrl)
		probe = NewMockResourceProbe(mockCtrl)
		registry = tracing.MakeRegistryBuilder().Build()

		m = NewMonitor()
		m.RegisterRegistry(registry)
		m.RegisterController(controller)
		m.RegisterProbe(probe)
	})

	AfterEach(func() {
		if registry.IsProfiling() {
			_, _ = registry.EndSession()
		}

		mockCtrl.Finish()
	})

	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, target, nil)
		m.Handler().ServeHTTP(rec, req)

		return rec
	}

	It("should begin a session", func() {
		controller.EXPECT().BeginProfiling().Return(nil)

		rec := serve("POST", "/api/profiling/begin")

		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})

	It("should report a conflict when a session is running", func() {
		controller.EXPECT().BeginProfiling().
			Return(tracing.ErrSessionAlreadyActive)

		rec := serve("POST", "/api/profiling/begin")

		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(rec.Body.String()).To(ContainSubstring("already in progress"))
	})

	It("should not begin on GET", func() {
		rec := serve("GET", "/api/profiling/begin")

		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should finish a session", func() {
		controller.EXPECT().FinishProfiling().Return(Summary{
			Name:   "trace-1.json",
			Link:   "/reports/ProfileReports/trace-1.json",
			Events: 7,
		}, nil)

		rec := serve("POST", "/api/profiling/finish")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{
			"name": "trace-1.json",
			"link": "/reports/ProfileReports/trace-1.json",
			"events": 7
		}`))
	})

	It("should report a conflict when no session is running", func() {
		controller.EXPECT().FinishProfiling().
			Return(Summary{}, tracing.ErrNoActiveSession)

		rec := serve("POST", "/api/profiling/finish")

		Expect(rec.Code).To(Equal(http.StatusConflict))
	})

	It("should report a failure to save", func() {
		controller.EXPECT().FinishProfiling().
			Return(Summary{}, errors.New("disk full"))

		rec := serve("POST", "/api/profiling/finish")

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).To(ContainSubstring("disk full"))
	})

	It("should refuse control without a controller", func() {
		m.RegisterController(nil)

		rec := serve("POST", "/api/profiling/finish")

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should tell whether a session is running", func() {
		Expect(serve("GET", "/api/profiling/status").Body.String()).
			To(MatchJSON(`{"profiling": false}`))

		Expect(registry.BeginSession()).To(Succeed())

		Expect(serve("GET", "/api/profiling/status").Body.String()).
			To(MatchJSON(`{"profiling": true}`))
	})

	It("should list profilers", func() {
		Expect(registry.BeginSession()).To(Succeed())
		p := registry.Current()
		p.Begin("handler")
		p.CreateObject("conn")

		rec := serve("GET", "/api/profilers")

		var infos []tracing.ProfilerInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &infos)).To(Succeed())
		Expect(infos).To(HaveLen(1))
		Expect(infos[0].Open).To(Equal([]string{"handler"}))
		Expect(infos[0].Roots).To(Equal(1))
		Expect(infos[0].Objects).To(Equal(1))
	})

	It("should describe a single profiler", func() {
		Expect(registry.BeginSession()).To(Succeed())
		registry.Current().Begin("handler")
		thread := registry.Profilers()[0].Thread

		rec := serve("GET", "/api/profiler/"+strconv.FormatUint(thread, 10))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should not find unknown profilers", func() {
		Expect(serve("GET", "/api/profiler/123456789").Code).
			To(Equal(http.StatusNotFound))
		Expect(serve("GET", "/api/profiler/main").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should report resources", func() {
		probe.EXPECT().Sample().
			Return(ResourceSample{CPUPercent: 12.5, MemorySize: 4096}, nil)

		rec := serve("GET", "/api/resource")

		Expect(rec.Body.String()).
			To(MatchJSON(`{"cpu_percent": 12.5, "memory_size": 4096}`))
	})

	It("should report probe failures", func() {
		probe.EXPECT().Sample().Return(ResourceSample{}, errors.New("no proc"))

		rec := serve("GET", "/api/resource")

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	It("should validate the profile duration", func() {
		Expect(serve("GET", "/api/cpuprofile?seconds=0").Code).
			To(Equal(http.StatusBadRequest))
		Expect(serve("GET", "/api/cpuprofile?seconds=x").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should serve saved reports", func() {
		dir := GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(dir, "ProfileReports"), 0o755)).
			To(Succeed())
		Expect(os.WriteFile(
			filepath.Join(dir, "ProfileReports", "trace-1.json"),
			[]byte(`{"traceEvents":[]}`), 0o644)).To(Succeed())

		m.ServeReports(dir, "/reports")
		rec := serve("GET", "/reports/ProfileReports/trace-1.json")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"traceEvents":[]}`))
	})

	It("should fall back to a random port", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(Equal(0))
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})
})
