package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retrofit-sim/retrofit-sim/sim"
	"github.com/retrofit-sim/retrofit-sim/sim/scenario"
)

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file for configuration errors",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		sc, err := loadScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := checkScenario(sc, os.Stdout); err != nil {
			os.Exit(1)
		}
	},
}

// checkScenario validates sc and reports the outcome to w.
func checkScenario(sc *scenario.Scenario, w io.Writer) error {
	if err := sc.Validate(); err != nil {
		var cfg *sim.ConfigurationError
		if errors.As(err, &cfg) && cfg.Field != "" {
			_, _ = fmt.Fprintf(w, "invalid scenario %q\n  field : %s\n  reason: %s\n", sc.Name, cfg.Field, cfg.Reason)
		} else {
			_, _ = fmt.Fprintf(w, "invalid scenario %q: %v\n", sc.Name, err)
		}
		return err
	}

	stations := 0
	for _, ws := range sc.Workshops {
		stations += ws.Stations
	}
	arrivals := fmt.Sprintf("%d train(s)", len(sc.Trains))
	if sc.Generator != nil {
		arrivals += fmt.Sprintf(" + %d generated", sc.Generator.Trains)
	}
	_, _ = fmt.Fprintf(w, "scenario %q is valid: %d tracks, %d workshop(s) with %d station(s), %d locomotive(s), %d routes, %s\n",
		sc.Name, len(sc.Tracks), len(sc.Workshops), stations, len(sc.Locomotives), len(sc.Routes), arrivals)
	return nil
}
