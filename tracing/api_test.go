package tracing

import (
	"context"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Measure", func() {
	var (
		ids *switchIdentifier
		r   *Registry
	)

	ginkgo.BeforeEach(func() {
		ids = &switchIdentifier{id: 4}
		r = MakeRegistryBuilder().
			WithClock(&tickingClock{}).
			WithIdentifier(ids).
			Build()
	})

	ginkgo.It("should not record without a session", func() {
		called := false

		r.Measure("idle", func(p Profiler) {
			called = true
			Expect(p.Active()).To(BeFalse())
		})

		Expect(called).To(BeTrue())
		Expect(r.roots).To(BeEmpty())
	})

	ginkgo.It("should close what the function leaves open", func() {
		Expect(r.BeginSession()).To(Succeed())

		r.Measure("outer", func(p Profiler) {
			p.Begin("inner")
		}, WithKind(KindProject))

		Expect(r.roots).To(HaveLen(1))
		outer := r.roots[0]
		Expect(outer.Kind).To(Equal(KindProject))
		Expect(outer.Ended).To(BeTrue())
		Expect(outer.Children[0].Ended).To(BeTrue())
	})

	ginkgo.It("should close measurements when the function panics", func() {
		Expect(r.BeginSession()).To(Succeed())

		Expect(func() {
			r.Measure("outer", func(p Profiler) {
				p.Begin("inner")
				panic("boom")
			})
		}).To(PanicWith("boom"))

		Expect(r.roots[0].Ended).To(BeTrue())
		Expect(r.roots[0].Children[0].Ended).To(BeTrue())

		p := r.Current().(*activeProfiler)
		Expect(p.retainCount).To(Equal(0))
		Expect(p.stack).To(BeEmpty())
	})

	ginkgo.It("should not close measurements of the caller", func() {
		Expect(r.BeginSession()).To(Succeed())
		p := r.Current()
		p.Retain()
		p.Begin("caller")

		r.Measure("callee", func(Profiler) {})

		caller := r.roots[0]
		Expect(caller.Ended).To(BeFalse())
		Expect(caller.Children[0].Ended).To(BeTrue())
	})
})

var _ = ginkgo.Describe("Context", func() {
	ginkgo.It("should carry a registry", func() {
		r := MakeRegistryBuilder().
			WithIdentifier(&switchIdentifier{id: 1}).
			Build()
		Expect(r.BeginSession()).To(Succeed())

		ctx := WithRegistry(context.Background(), r)

		Expect(RegistryFromContext(ctx)).To(BeIdenticalTo(r))
		Expect(FromContext(ctx)).To(BeIdenticalTo(r.Current()))
	})

	ginkgo.It("should fall back to the default registry", func() {
		var nilCtx context.Context

		Expect(RegistryFromContext(context.Background())).
			To(BeIdenticalTo(DefaultRegistry))
		Expect(RegistryFromContext(nilCtx)).To(BeIdenticalTo(DefaultRegistry))
		Expect(RegistryFromContext(WithRegistry(context.Background(), nil))).
			To(BeIdenticalTo(DefaultRegistry))
	})
})

var _ = ginkgo.Describe("Default registry", func() {
	ginkgo.AfterEach(func() {
		if IsProfiling() {
			_, _ = EndSession()
		}
	})

	ginkgo.It("should profile through the package functions", func() {
		Expect(IsProfiling()).To(BeFalse())
		Expect(BeginSession()).To(Succeed())
		Expect(IsProfiling()).To(BeTrue())

		Measure("work", func(p Profiler) {
			Expect(p).To(BeIdenticalTo(Current()))
			p.CreateObject("job")
		})

		a, err := EndSession()

		Expect(err).NotTo(HaveOccurred())
		Expect(phasesOf(a.Report.TraceEvents)).To(ConsistOf(
			PhaseBegin, PhaseEnd, PhaseObjectCreated, PhaseObjectDestroyed))
		Expect(Current()).To(Equal(Inactive))
	})
})
