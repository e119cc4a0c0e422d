package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/metrics"
	"github.com/retrofit-sim/retrofit-sim/sim/scenario"
	"github.com/retrofit-sim/retrofit-sim/sim/trace"
	"github.com/retrofit-sim/retrofit-sim/sim/workflow"
)

var (
	scenarioPath        string // Path to the scenario YAML
	seed                int64  // Overrides the scenario seed when set
	simulationHorizon   int64  // Overrides the scenario horizon when set
	strategy            string // Overrides the track selection strategy when set
	locomotiveSelection string // Overrides the locomotive selection policy when set
	logLevel            string // Log verbosity level

	// Result outputs
	eventsOut  string // JSON lines event log
	eventsDB   string // SQLite database for events and summaries
	metricsOut string // Prometheus textfile
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "retrofit-sim",
	Short: "Discrete-event simulator for rail wagon retrofit workshops",
}

// outputs names the files a finished run is written to. Empty paths are skipped.
type outputs struct {
	EventsOut  string
	EventsDB   string
	MetricsOut string
}

func currentOutputs() outputs {
	return outputs{EventsOut: eventsOut, EventsDB: eventsDB, MetricsOut: metricsOut}
}

// runCmd executes one scenario
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a retrofit workshop scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		sc, err := loadScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		startTime := time.Now()
		res, err := runScenario(cmd.Context(), sc, os.Stdout, currentOutputs())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
		if res.Status == sim.StatusFailed {
			os.Exit(1)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadScenario reads --scenario and applies the flags the user set
// explicitly on top of it.
func loadScenario(cmd *cobra.Command) (*scenario.Scenario, error) {
	if scenarioPath == "" {
		return nil, fmt.Errorf("--scenario is required")
	}
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		sc.Seed = seed
	}
	if flags.Changed("horizon") {
		sc.Horizon = simulationHorizon
	}
	if flags.Changed("strategy") {
		sc.Strategy = strategy
	}
	if flags.Changed("locomotive-selection") {
		sc.LocomotiveSelection = locomotiveSelection
	}
	return sc, nil
}

// runScenario simulates sc, prints its report to w and writes the
// requested outputs.
func runScenario(ctx context.Context, sc *scenario.Scenario, w io.Writer, out outputs) (*workflow.Result, error) {
	res, err := workflow.Run(sc, logrus.NewEntry(logrus.StandardLogger()))
	if err != nil {
		return nil, err
	}
	printResult(w, res)

	if out.EventsOut != "" {
		if err := trace.SaveJSONL(out.EventsOut, res.Records); err != nil {
			return res, err
		}
		logrus.Infof("Event log written to %s", out.EventsOut)
	}
	if err := writeResults(ctx, []*workflow.Result{res}, out); err != nil {
		return res, err
	}
	return res, nil
}

// writeResults stores results in the SQLite database and the metrics
// textfile, whichever are set.
func writeResults(ctx context.Context, results []*workflow.Result, out outputs) error {
	if out.EventsDB != "" {
		for _, res := range results {
			if err := trace.SaveSQLite(ctx, out.EventsDB, runInfo(res), res.Records, res.Summary); err != nil {
				return fmt.Errorf("save %s: %w", runID(res), err)
			}
		}
		logrus.Infof("%d run(s) stored in %s", len(results), out.EventsDB)
	}
	if out.MetricsOut != "" {
		collector := metrics.NewCollector()
		for _, res := range results {
			collector.Observe(runID(res), res.Records, res.Summary)
		}
		if err := collector.WriteTextfile(out.MetricsOut); err != nil {
			return err
		}
		logrus.Infof("Metrics written to %s", out.MetricsOut)
	}
	return nil
}

// runID names a run by scenario, seed and strategy so repeated runs
// replace each other in the database.
func runID(res *workflow.Result) string {
	return fmt.Sprintf("%s/seed=%d/%s", res.Name, res.Seed, res.Strategy)
}

func runInfo(res *workflow.Result) trace.RunInfo {
	return trace.RunInfo{
		ID:       runID(res),
		Scenario: res.Name,
		Seed:     res.Seed,
		Strategy: res.Strategy,
		Status:   string(res.Status),
		Clock:    res.Clock,
	}
}

func printResult(w io.Writer, res *workflow.Result) {
	res.Summary.Print(w)
	_, _ = fmt.Fprintf(w, "Status               : %s\n", res.Status)
	_, _ = fmt.Fprintf(w, "Events Executed      : %d\n", res.Events)
	if res.HorizonHit {
		_, _ = fmt.Fprintf(w, "Horizon Reached      : tick %d\n", res.Clock)
	}
	if res.Stalled {
		_, _ = fmt.Fprintln(w, "Stalled              : no events left with wagons in flight")
	}
	if len(res.Stranded) > 0 {
		_, _ = fmt.Fprintf(w, "Stranded Wagons      : %d\n", len(res.Stranded))
		for _, wagon := range res.Stranded {
			_, _ = fmt.Fprintf(w, "  %-18s %s\n", wagon.ID, wagon.Status)
		}
	}
	if res.Leak != nil {
		_, _ = fmt.Fprintf(w, "Resource Leak        : %v\n", res.Leak)
	}
	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(w, "Failure              : %s at tick %d: %v\n", f.Process, f.Time, f.Err)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd, compareCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML")
		c.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	}

	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the workshop and arrival generators (overrides the scenario)")
	runCmd.Flags().Int64Var(&simulationHorizon, "horizon", 0, "Simulation horizon in ticks, 0 runs until no events remain (overrides the scenario)")
	runCmd.Flags().StringVar(&strategy, "strategy", "first-fit", "Track selection strategy (overrides the scenario)")
	runCmd.Flags().StringVar(&locomotiveSelection, "locomotive-selection", "first-available", "Locomotive selection policy (overrides the scenario)")
	runCmd.Flags().StringVar(&eventsOut, "events-out", "", "Write the event log as JSON lines to this file")

	for _, c := range []*cobra.Command{runCmd, compareCmd} {
		c.Flags().StringVar(&eventsDB, "events-db", "", "Store events and summaries in this SQLite database")
		c.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(compareCmd)
}
