package main

import (
	"github.com/spf13/cobra"

	"github.com/hyfloac/TauIR-sub000/ir"
)

func newDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <sample>",
		Short: "Decode a sample's raw stack-IR bytecode and print it as text",
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
			logger.WithField("function", fn.Name()).Debug("disassembling")

			dec := ir.NewDecoder(fn.Code())
			dumper := ir.NewDumper(cmd.OutOrStdout())
			if err := dec.Traverse(dumper); err != nil {
				return err
			}
			return dumper.Err()
		},
	}
}
