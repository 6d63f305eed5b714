package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyfloac/TauIR-sub000/emulate"
	"github.com/hyfloac/TauIR-sub000/ssa/lift"
)

func newRunCommand() *cobra.Command {
	var ssaFlag bool
	cmd := &cobra.Command{
		Use:   "run <sample>",
		Short: "Execute a sample's entry function against the reference emulator",
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

			if !ssaFlag {
				vm := emulate.NewVM()
				result, err := vm.Run(mod, fn)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", fn.Name(), result)
				return nil
			}

			logger.WithField("function", fn.Name()).Debug("lifting to SSA before running")
			w, err := lift.TransformFunction(fn, mod, mod.Registry())
			if err != nil {
				return err
			}
			fn.SetCode(w.Bytes())

			vm := emulate.NewSsaVM()
			result, err := vm.Run(mod, fn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %x\n", fn.Name(), result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ssaFlag, "ssa", false, "lift to SSA and execute with the SSA emulator instead of the raw IR interpreter")
	return cmd
}
