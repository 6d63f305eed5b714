// Command tauir is a small driver over the TauIR/SSA middle-end: it
// disassembles stack-IR bytecode, lifts it to SSA, runs the optimizer
// pipeline, and executes either form through the reference emulators.
// It has no on-disk module loader of its own (spec.md §1 keeps that format
// out of scope); its inputs are the hand-assembled modules in samples.go.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	traceFlag bool
	logger    = logrus.New()
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tauir",
		Short: "Inspect and execute TauIR/SSA sample modules",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if traceFlag {
				logger.SetLevel(logrus.DebugLevel)
			} else {
				logger.SetLevel(logrus.WarnLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&traceFlag, "trace", false, "enable debug-level tracing of each pipeline stage")

	root.AddCommand(newSamplesCommand())
	root.AddCommand(newDisasmCommand())
	root.AddCommand(newLiftCommand())
	root.AddCommand(newOptCommand())
	root.AddCommand(newRunCommand())
	return root
}

func newSamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the built-in sample modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range samples {
				cmd.Printf("%-8s %s\n", s.name, s.description)
			}
			return nil
		},
	}
}

func main() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
