package main

import (
	"github.com/spf13/cobra"

	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/ssa/lift"
)

func newLiftCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lift <sample>",
		Short: "Lift a sample's stack-IR entry function to SSA and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := findSample(args[0])
			if err != nil {
				return err
			}
			mod, entry := s.build()
			fn, _, ok := mod.FunctionByName(entry)
			if !ok {
				return errUnknownEntry(entry)
			}
			logger.WithField("function", fn.Name()).Debug("lifting to SSA")

			w, err := lift.TransformFunction(fn, mod, mod.Registry())
			if err != nil {
				return err
			}

			dec := ssa.NewDecoder(w.Bytes(), mod.Registry())
			dumper := ssa.NewDumper(cmd.OutOrStdout())
			if err := dec.Traverse(dumper); err != nil {
				return err
			}
			return dumper.Err()
		},
	}
}
