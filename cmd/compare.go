package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/retrofit-sim/retrofit-sim/sim/scenario"
	"github.com/retrofit-sim/retrofit-sim/sim/workflow"
)

var (
	compareSeeds      []int64  // Seeds to sweep
	compareStrategies []string // Track selection strategies to sweep
	compareParallel   int      // Maximum runs in flight
)

// compareCmd runs one scenario under several seeds and strategies
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run a scenario across seeds and strategies and tabulate the results",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		sc, err := loadScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		results, err := compareScenario(cmd.Context(), sc, compareSeeds, compareStrategies, compareParallel)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printComparison(os.Stdout, results)
		if err := writeResults(cmd.Context(), results, currentOutputs()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// variants expands sc into one scenario per seed and strategy, seeds
// outermost. An empty list keeps the scenario's own value.
func variants(sc *scenario.Scenario, seeds []int64, strategies []string) []*scenario.Scenario {
	if len(seeds) == 0 {
		seeds = []int64{sc.Seed}
	}
	if len(strategies) == 0 {
		strategies = []string{sc.Strategy}
	}
	out := make([]*scenario.Scenario, 0, len(seeds)*len(strategies))
	for _, s := range seeds {
		for _, st := range strategies {
			v := *sc
			v.Seed = s
			v.Strategy = st
			out = append(out, &v)
		}
	}
	return out
}

// compareScenario runs every variant in its own simulation context, at most
// parallel at a time. Results keep the variant order regardless of which
// run finishes first. The first configuration error cancels the rest.
func compareScenario(ctx context.Context, sc *scenario.Scenario, seeds []int64, strategies []string, parallel int) ([]*workflow.Result, error) {
	runs := variants(sc, seeds, strategies)
	// Contexts validate their scenario; doing it once up front reports a bad
	// file a single time instead of once per variant.
	for _, v := range runs {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	results := make([]*workflow.Result, len(runs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, v := range runs {
		i, v := i, v // per-iteration copies; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log := logrus.WithFields(logrus.Fields{"seed": v.Seed, "strategy": v.Strategy})
			res, err := workflow.Run(v, log)
			if err != nil {
				return fmt.Errorf("seed %d strategy %s: %w", v.Seed, v.Strategy, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printComparison(w io.Writer, results []*workflow.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEED\tSTRATEGY\tSTATUS\tCLOCK\tARRIVED\tREJECTED\tPARKED\tMEAN TURNAROUND\tP95 TURNAROUND\tSTRANDED")
	for _, res := range results {
		s := res.Summary
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%d\n",
			res.Seed, res.Strategy, res.Status, res.Clock, s.Arrived, s.Rejected, s.Parked,
			s.MeanTurnaround, s.P95Turnaround, len(res.Stranded))
	}
	_ = tw.Flush()
}

func init() {
	compareCmd.Flags().Int64SliceVar(&compareSeeds, "seeds", nil, "Comma-separated seeds (default: the scenario seed)")
	compareCmd.Flags().StringSliceVar(&compareStrategies, "strategies", nil, "Comma-separated track selection strategies (default: the scenario strategy)")
	compareCmd.Flags().IntVar(&compareParallel, "parallel", 0, "Maximum concurrent runs (0 = GOMAXPROCS)")
}
