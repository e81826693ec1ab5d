package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/tearne/abcd-go/config"
	"github.com/tearne/abcd-go/driver"
	"github.com/tearne/abcd-go/examples/unfaircoin"
	"github.com/tearne/abcd-go/storage/fsstore"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var observed float64
	var reps int
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more workers' SMC generation loops against a shared store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if workers < 1 {
				workers = 1
			}

			model := unfaircoin.New(observed, reps)
			store := fsstore.New(cfg.RootDir(), model.Factory())
			if err := store.Init(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWorkers(ctx, model, store, cfg, workers)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the job YAML config")
	cmd.Flags().Float64Var(&observed, "observed-heads", 0.5, "observed proportion of heads fed to the worked coin-bias model")
	cmd.Flags().IntVar(&reps, "reps", 20, "number of simulated coin tosses per scored candidate")
	cmd.Flags().IntVar(&workers, "workers", 1, "number of in-process worker goroutines to run against the shared store")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// runWorkers starts n independent driver.Loop goroutines against the
// same store, each with its own seeded rng, and waits for all of them
// to finish. One worker's fatal error is logged but does not stop the
// others; runWorkers returns the first one encountered.
func runWorkers(ctx context.Context, model *unfaircoin.Model, store *fsstore.Store[unfaircoin.Coin], cfg config.Config, n int) error {
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano()) + uint64(i)))
			log := logrus.WithField("worker", i).WithField("bucket", cfg.RootDir())
			errs[i] = driver.Loop[unfaircoin.Coin](ctx, model, store, cfg, rng, log)
			if errs[i] != nil {
				log.WithError(errs[i]).Error("worker stopped with a fatal error")
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
