package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/store"
)

var reliabilityCmd = &cobra.Command{
	Use:   "reliability",
	Short: "Source reliability maintenance",
}

var reliabilityRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute every source's reliability from its approval history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		updates, err := recomputeReliability(ctx, st, confidence.NewEngine(st, cfg.Confidence))
		if err != nil {
			return err
		}
		formatReliability(os.Stdout, updates)
		return nil
	},
}

// recomputeReliability updates every source. A failure on one source is
// logged and the rest still run.
func recomputeReliability(ctx context.Context, st store.Store, engine *confidence.Engine) ([]confidence.ReliabilityUpdate, error) {
	ids, err := st.ListSourceIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list sources")
	}

	out := make([]confidence.ReliabilityUpdate, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		u, err := engine.UpdateSourceReliability(ctx, id)
		if err != nil {
			zap.L().Warn("reliability recompute failed", zap.String("source_id", id), zap.Error(err))
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func formatReliability(out io.Writer, updates []confidence.ReliabilityUpdate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tAPPROVED\tTOTAL\tPREVIOUS\tCURRENT")
	_, _ = fmt.Fprintln(w, "------\t--------\t-----\t--------\t-------")
	for _, u := range updates {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\n",
			u.SourceID, u.Stats.Approved, u.Stats.Total, u.Previous, u.Current)
	}
	_ = w.Flush()
}

func init() {
	reliabilityCmd.AddCommand(reliabilityRecomputeCmd)
	rootCmd.AddCommand(reliabilityCmd)
}
