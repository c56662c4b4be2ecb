package cmd

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/sarchlab/sessionprof/config"
	"github.com/sarchlab/sessionprof/profiling"
	"github.com/sarchlab/sessionprof/tracing"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Profile a small concurrent workload and save its report.",
	Run: func(cmd *cobra.Command, _ []string) {
		settings, err := loadSettings()
		if err != nil {
			log.Fatalf("Error loading settings: %v", err)
		}

		workers, _ := cmd.Flags().GetInt("workers")
		jobs, _ := cmd.Flags().GetInt("jobs")

		service := profiling.MakeBuilder().
			WithSettings(settings).
			WithoutMonitoring().
			Build()

		ctx, cancel := context.WithCancel(context.Background())
		sampling := make(chan error, 1)
		go func() {
			sampling <- service.Run(ctx)
		}()

		if err := service.BeginProfiling(); err != nil {
			log.Fatalf("Error beginning session: %v", err)
		}

		err = runWorkload(service.Registry(), workers, jobs)
		if err != nil {
			log.Fatalf("Error running workload: %v", err)
		}

		summary, err := service.FinishProfiling()
		cancel()
		<-sampling

		if closeErr := service.Close(); closeErr != nil {
			warnColor.Printf("Could not close the store: %v\n", closeErr)
		}

		if err != nil {
			log.Fatalf("Error finishing session: %v", err)
		}

		okColor.Printf("Saved %s with %d events\n", summary.Name, summary.Events)

		if settings.Store == config.StoreSQLite {
			return
		}

		file := filepath.Join(settings.Repository, settings.Path, summary.Name)
		linkColor.Println(file)

		if open, _ := cmd.Flags().GetBool("open"); open {
			if err := browser.OpenFile(file); err != nil {
				warnColor.Printf("Could not open the browser: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().Int("workers", 4, "number of concurrent workers")
	demoCmd.Flags().Int("jobs", 8, "number of jobs per worker")
	demoCmd.Flags().Bool("open", false, "open the report in the browser")
}

func runWorkload(r *tracing.Registry, workers, jobs int) error {
	g := new(errgroup.Group)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			r.Measure(fmt.Sprintf("worker-%d", w), func(p tracing.Profiler) {
				for j := 0; j < jobs; j++ {
					runJob(p, j)
				}
			}, tracing.WithKind(tracing.KindProject))

			return nil
		})
	}

	return g.Wait()
}

func runJob(p tracing.Profiler, seq int) {
	id := "job-" + xid.New().String()

	p.CreateObject(id, tracing.WithCategory(tracing.KindThingworx))
	defer p.DestroyObject(id)

	p.Begin("job", tracing.WithKind(tracing.KindStandard))
	defer p.Finish()

	p.BeginSynthetic("queue wait", tracing.KindImport, "scheduler")
	sleep(1)
	p.Finish()

	p.Begin("load", tracing.WithDelaysParent())
	p.BeginImplicit("load")
	sleep(2)
	p.FinishImplicit()
	p.Finish()

	p.UpdateObject(id, map[string]any{"seq": seq, "state": "loaded"})

	p.Begin("compute", tracing.WithFile("profctl/cmd/demo.go"))
	sleep(3)
	p.Finish()

	p.UpdateObject(id, map[string]any{"seq": seq, "state": "done"})
}

func sleep(maxMillis int) {
	time.Sleep(time.Duration(rand.Intn(maxMillis*1000)+100) * time.Microsecond)
}
