package tracing

import (
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = ginkgo.Describe("Profiler", func() {
	var (
		clock *tickingClock
		ids   *switchIdentifier
		r     *Registry
		p     *activeProfiler
	)

	ginkgo.BeforeEach(func() {
		clock = &tickingClock{}
		ids = &switchIdentifier{id: 7}
		r = MakeRegistryBuilder().
			WithClock(clock).
			WithIdentifier(ids).
			Build()

		Expect(r.BeginSession()).To(Succeed())
		p = r.Current().(*activeProfiler)
	})

	ginkgo.It("should nest measurements by call order", func() {
		p.Retain()
		p.Begin("outer")
		p.Begin("first")
		p.Finish()
		p.Begin("second")
		p.Finish()
		p.Finish()
		p.Release()

		Expect(r.roots).To(HaveLen(1))
		outer := r.roots[0]
		Expect(outer.Name).To(Equal("outer"))
		Expect(outer.Thread).To(Equal(ThreadID{Num: 7}))
		Expect(outer.Children).To(HaveLen(2))
		Expect(outer.Children[0].Name).To(Equal("first"))
		Expect(outer.Children[1].Name).To(Equal("second"))
		Expect(outer.Ended).To(BeTrue())
		Expect(outer.End).To(BeNumerically(">", outer.Children[1].End))
		Expect(p.stack).To(BeEmpty())
	})

	ginkgo.It("should only register root measurements", func() {
		p.Begin("a")
		p.Begin("b")
		p.Finish()
		p.Finish()
		p.Begin("c")

		Expect(r.roots).To(HaveLen(2))
		Expect(r.roots[0].Name).To(Equal("a"))
		Expect(r.roots[1].Name).To(Equal("c"))
	})

	ginkgo.It("should stamp the retain depth on measurements", func() {
		p.Begin("outside")
		p.Retain()
		p.Begin("inside")

		Expect(p.stack[0].Block).To(Equal(0))
		Expect(p.stack[1].Block).To(Equal(1))
	})

	ginkgo.It("should keep optional attributes", func() {
		p.Begin("svc",
			WithFile("things/Service.ts"),
			WithLineNumber(42),
			WithKind(KindProject),
			WithDelaysParent())

		m := p.current()
		Expect(m.File).To(Equal("things/Service.ts"))
		Expect(m.LineNumber).To(Equal(42))
		Expect(m.Kind).To(Equal(KindProject))
		Expect(m.DelaysParent).To(BeTrue())
	})

	ginkgo.It("should only close the released block", func() {
		p.Retain()
		p.Begin("A")
		p.Retain()
		p.Begin("B")
		p.Release()

		Expect(p.stack).To(HaveLen(1))
		a := p.stack[0]
		Expect(a.Name).To(Equal("A"))
		Expect(a.Ended).To(BeFalse())
		Expect(a.Children).To(HaveLen(1))
		Expect(a.Children[0].Ended).To(BeTrue())
		Expect(p.retainCount).To(Equal(1))
	})

	ginkgo.It("should close forgotten measurements on release", func() {
		p.Retain()
		p.Begin("A")
		p.Begin("B")
		p.Begin("C")
		p.Release()

		Expect(p.stack).To(BeEmpty())
		a := r.roots[0]
		Expect(a.Ended).To(BeTrue())
		Expect(a.Children[0].Ended).To(BeTrue())
		Expect(a.Children[0].Children[0].Ended).To(BeTrue())
	})

	ginkgo.It("should not let the retain count go below zero", func() {
		p.Begin("loose")
		p.Release()
		p.Release()

		Expect(p.retainCount).To(Equal(0))
		Expect(r.roots[0].Ended).To(BeTrue())
	})

	ginkgo.It("should ignore unbalanced finishes", func() {
		Expect(func() {
			p.Finish()
			p.FinishImplicit()
			p.Finish()
		}).NotTo(Panic())

		Expect(r.roots).To(BeEmpty())
	})

	ginkgo.It("should fold implicit begins into the open measurement", func() {
		p.Begin("explicit")
		p.BeginImplicit("auto")
		p.BeginImplicit("auto")

		Expect(p.stack).To(HaveLen(1))
		Expect(p.current().Implicit).To(Equal(2))

		p.FinishImplicit()
		p.FinishImplicit()
		Expect(p.current().Implicit).To(Equal(0))
		Expect(p.current().Ended).To(BeFalse())

		p.FinishImplicit()
		Expect(p.stack).To(BeEmpty())
		Expect(r.roots[0].Ended).To(BeTrue())
	})

	ginkgo.It("should begin implicitly when nothing is open", func() {
		p.BeginImplicit("auto", WithKind(KindImport))

		Expect(p.stack).To(HaveLen(1))
		Expect(p.current().Name).To(Equal("auto"))
		Expect(p.current().Kind).To(Equal(KindImport))
	})

	ginkgo.It("should place synthetic measurements on a virtual thread", func() {
		p.BeginSynthetic("gc", "", "runtime")
		p.Finish()
		p.BeginSynthetic("local", KindStandard, "")

		Expect(r.roots[0].Thread).To(Equal(ThreadID{Num: 7, Name: "runtime"}))
		Expect(r.roots[0].Kind).To(Equal(KindUnknown))
		Expect(r.roots[1].Thread.String()).To(Equal("7"))
		Expect(r.roots[1].Kind).To(Equal(KindStandard))
	})

	ginkgo.It("should stop every block", func() {
		p.Retain()
		p.Begin("A")
		p.Retain()
		p.Retain()
		p.Begin("B")

		p.Stop()

		Expect(p.retainCount).To(Equal(0))
		Expect(p.stack).To(BeEmpty())
	})

	ginkgo.Context("when tracking objects", func() {
		ginkgo.It("should create an object only once", func() {
			p.CreateObject("conn", WithCategory("socket"), WithThread("io"))
			p.CreateObject("conn", WithCategory("other"))

			o := p.objects.byName["conn"]
			Expect(o.HasCreated).To(BeTrue())
			Expect(o.Created).To(Equal(1.0))
			Expect(o.Category).To(Equal("socket"))
			Expect(o.Thread).To(Equal("io"))
		})

		ginkgo.It("should default the category and thread", func() {
			p.CreateObject("conn")

			o := p.objects.byName["conn"]
			Expect(o.Category).To(Equal(DefaultObjectCategory))
			Expect(o.Thread).To(Equal("7"))
		})

		ginkgo.It("should keep the goroutine thread for an empty thread", func() {
			p.CreateObject("conn", WithThread(""))

			o := p.objects.byName["conn"]
			Expect(o.Thread).To(Equal("7"))
		})

		ginkgo.It("should materialize objects updated before creation", func() {
			p.UpdateObject("conn", map[string]int{"v": 1})
			p.DestroyObject("conn")
			p.DestroyObject("conn")

			o := p.objects.byName["conn"]
			Expect(o.HasCreated).To(BeFalse())
			Expect(o.Snapshots).To(HaveLen(1))
			Expect(o.HasDestroyed).To(BeTrue())
			Expect(o.Destroyed).To(Equal(2.0))
		})

		ginkgo.It("should keep snapshots when created late", func() {
			p.UpdateObject("conn", "opening")
			p.CreateObject("conn", WithCategory("socket"))

			o := p.objects.byName["conn"]
			Expect(o.Snapshots).To(HaveLen(1))
			Expect(o.HasCreated).To(BeTrue())
			Expect(o.Category).To(Equal("socket"))
		})

		ginkgo.It("should keep objects in first-seen order", func() {
			p.UpdateObject("b", 1)
			p.CreateObject("a")
			p.DestroyObject("b")

			Expect(p.objects.order).To(Equal([]string{"b", "a"}))
		})
	})

	ginkgo.It("should describe itself", func() {
		p.Retain()
		p.Begin("A")
		p.Begin("B")
		p.CreateObject("o")

		info, ok := r.Profiler(7)

		Expect(ok).To(BeTrue())
		Expect(info.RetainCount).To(Equal(1))
		Expect(info.Open).To(Equal([]string{"A", "B"}))
		Expect(info.Roots).To(Equal(1))
		Expect(info.Objects).To(Equal(1))
	})

	ginkgo.It("should ignore calls once cleared", func() {
		_, err := r.EndSession()
		Expect(err).NotTo(HaveOccurred())

		p.Retain()
		p.Begin("late")
		p.CreateObject("late")

		Expect(p.Active()).To(BeFalse())
		Expect(p.stack).To(BeEmpty())
		Expect(p.objects.len()).To(Equal(0))
	})
})

var _ = ginkgo.Describe("Profiler timestamps", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *MockClock
		ids      *MockIdentifier
		r        *Registry
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		clock = NewMockClock(mockCtrl)
		ids = NewMockIdentifier(mockCtrl)
		ids.EXPECT().ContextID().Return(uint64(3)).AnyTimes()

		r = MakeRegistryBuilder().
			WithClock(clock).
			WithIdentifier(ids).
			Build()
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should read the clock on begin and finish", func() {
		gomock.InOrder(
			clock.EXPECT().Now().Return(100.0),
			clock.EXPECT().Now().Return(250.0),
		)

		Expect(r.BeginSession()).To(Succeed())
		p := r.Current()
		p.Begin("timed")
		p.Finish()

		Expect(r.roots[0].Start).To(Equal(100.0))
		Expect(r.roots[0].End).To(Equal(250.0))
	})

	ginkgo.It("should not read the clock while inactive", func() {
		p := r.Current()
		p.Retain()
		p.Begin("ignored")
		p.Finish()
		p.Release()
	})
})

var _ = ginkgo.Describe("Inactive profiler", func() {
	ginkgo.It("should do nothing", func() {
		p := Inactive

		Expect(p.Retain()).To(Equal(Inactive))
		Expect(func() {
			p.Begin("x", WithKind(KindStandard))
			p.BeginImplicit("x")
			p.BeginSynthetic("x", "", "t")
			p.Finish()
			p.FinishImplicit()
			p.CreateObject("o")
			p.UpdateObject("o", 1)
			p.DestroyObject("o")
			p.Release()
			p.Stop()
		}).NotTo(Panic())
		Expect(p.Active()).To(BeFalse())
	})
})
