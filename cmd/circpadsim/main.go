// Command circpadsim replays the circuit padding framework's reference
// scenarios (spec §8, S1-S6) against an in-memory fake transport and
// hop directory, printing each machine's observed padding behavior.
// There is no real circuit, transport, or peer relay here — this is a
// standalone harness for exercising the engine end to end, modeled on
// the reference CLI's own Cobra root-command-plus-persistent-flags
// shape.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"circpad/config"
	"circpad/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("circpadsim: command failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool
	var only string

	cmd := &cobra.Command{
		Use:   "circpadsim",
		Short: "Replay circuit padding framework scenarios against an in-memory engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.PaddingEnabled {
				fmt.Println("circpadsim: padding-enabled is false in", config.Path(), "- nothing to replay")
				return nil
			}

			scenarios := allScenarios()
			if only != "" {
				filtered := scenarios[:0]
				for _, s := range scenarios {
					if s.name == only {
						filtered = append(filtered, s)
					}
				}
				if len(filtered) == 0 {
					return fmt.Errorf("no scenario named %q", only)
				}
				scenarios = filtered
			}
			for _, s := range scenarios {
				fmt.Println(runScenario(s, cfg))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&only, "scenario", "", "run only the named scenario (default: all)")
	return cmd
}
