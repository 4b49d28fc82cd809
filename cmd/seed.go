package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/catalog"
	"github.com/sells-group/sokoprice/internal/store"
)

var (
	seedHistoryDays int
	seedNoSources   bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the bundled crop and market catalog",
	Long:  "Upserts the bundled crops and markets, registers sample sources, and optionally generates approved price history for local development.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := runSeed(ctx, st, seedOptions{
			HistoryDays: seedHistoryDays,
			Sources:     !seedNoSources,
			Now:         time.Now(),
		})
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int("crops", res.Crops),
			zap.Int("markets", res.Markets),
			zap.Int("sources_created", res.SourcesCreated),
			zap.Int64("prices", res.Prices),
		)
		return nil
	},
}

type seedOptions struct {
	HistoryDays int
	Sources     bool
	Now         time.Time
	// Catalog, when set, is the running process's cache and is invalidated
	// once the catalog is written.
	Catalog *catalog.Catalog
}

type seedResult struct {
	Crops          int
	Markets        int
	SourcesCreated int
	Prices         int64
}

func runSeed(ctx context.Context, st store.Store, opts seedOptions) (seedResult, error) {
	var res seedResult

	seed, err := catalog.LoadSeed()
	if err != nil {
		return res, err
	}
	if err := st.SeedCatalog(ctx, seed.Crops, seed.Markets); err != nil {
		return res, eris.Wrap(err, "seed catalog")
	}
	if opts.Catalog != nil {
		opts.Catalog.Invalidate()
	}
	res.Crops = len(seed.Crops)
	res.Markets = len(seed.Markets)

	if !opts.Sources {
		return res, nil
	}

	sourceIDs := make([]string, 0, len(seed.Sources))
	for _, s := range seed.Sources {
		src, created, err := st.FindOrCreateSource(ctx, s.Model())
		if err != nil {
			return res, eris.Wrapf(err, "seed source %s", s.Name)
		}
		if created {
			res.SourcesCreated++
		}
		sourceIDs = append(sourceIDs, src.ID)
	}

	if opts.HistoryDays <= 0 {
		return res, nil
	}
	history := seed.SampleHistory(opts.HistoryDays, opts.Now, sourceIDs, nil)
	n, err := st.ImportPrices(ctx, history)
	if err != nil {
		return res, eris.Wrap(err, "seed price history")
	}
	res.Prices = n
	return res, nil
}

func init() {
	seedCmd.Flags().IntVar(&seedHistoryDays, "history-days", 0, "generate this many days of approved sample prices")
	seedCmd.Flags().BoolVar(&seedNoSources, "no-sources", false, "skip registering the sample sources")
	rootCmd.AddCommand(seedCmd)
}
