package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/ssa/lift"
	"github.com/hyfloac/TauIR-sub000/ssa/opto"
)

var defaultPasses = "constprop,dce,inline"

func newOptCommand() *cobra.Command {
	var passesFlag string
	cmd := &cobra.Command{
		Use:   "opt <sample>",
		Short: "Lift a sample module to SSA and run the optimizer pipeline over its entry function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := findSample(args[0])
			if err != nil {
				return err
			}
			mod, entry := s.build()

			names, err := parsePassNames(passesFlag)
			if err != nil {
				return err
			}

			// Lift every function, not just the entry point: the inliner
			// resolves callees through fn.Code(), per ssa/opto/inline.go's
			// inlineFunction, so every potential callee needs SSA bytes in
			// place before the pipeline runs.
			maxID, err := liftAllFunctions(mod)
			if err != nil {
				return err
			}

			fn, _, ok := mod.FunctionByName(entry)
			if !ok {
				return errUnknownEntry(entry)
			}

			out, err := opto.RunPipeline(logger, fn.Name(), names, fn.Code(), maxID, mod, mod.Registry())
			if err != nil {
				return err
			}
			fn.SetCode(out)

			dec := ssa.NewDecoder(fn.Code(), mod.Registry())
			dumper := ssa.NewDumper(cmd.OutOrStdout())
			if err := dec.Traverse(dumper); err != nil {
				return err
			}
			return dumper.Err()
		},
	}
	cmd.Flags().StringVar(&passesFlag, "opt", defaultPasses, "comma-separated optimizer passes to run, in order (constprop,dce,inline)")
	return cmd
}

func parsePassNames(raw string) ([]opto.PassName, error) {
	parts := strings.Split(raw, ",")
	names := make([]opto.PassName, 0, len(parts))
	for _, r := range parts {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		switch opto.PassName(r) {
		case opto.PassConstProp, opto.PassDCE, opto.PassInline:
			names = append(names, opto.PassName(r))
		default:
			return nil, opto.ErrUnknownPass
		}
	}
	return names, nil
}

// liftAllFunctions replaces every function's stack-IR Code() with its
// lifted SSA form in place, and returns the highest variable id any of
// them allocated, since the pipeline's first pass needs an upper bound
// on the entry function's own id space.
func liftAllFunctions(mod *module.Module) (ssa.VarId, error) {
	var maxID ssa.VarId
	for _, fn := range mod.Functions() {
		w, err := lift.TransformFunction(fn, mod, mod.Registry())
		if err != nil {
			return 0, err
		}
		fn.SetCode(w.Bytes())
		logger.WithField("function", fn.Name()).Debug("lifted to SSA")
		if id := w.IdIndex(); id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}
