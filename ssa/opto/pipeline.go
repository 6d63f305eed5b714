package opto

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

// PassName identifies one of the optimizer passes RunPass knows how to
// drive, matching cmd/tauir's `--opt=constprop,dce,inline` flag values.
type PassName string

const (
	PassConstProp PassName = "constprop"
	PassDCE       PassName = "dce"
	PassInline    PassName = "inline"
)

// ErrUnknownPass is returned by RunPass for any PassName not in the set
// above.
var ErrUnknownPass = errors.New("tauir/ssa/opto: unknown pass name")

// RunPass decodes one SSA function body, runs the named pass over it, and
// returns the rewritten body plus the highest variable id it allocated
// (the maxID a subsequent pass needs). mod and registry are only
// consulted by PassInline; pass either of the other two names with a nil
// mod.
//
// This is the single driver every multi-pass pipeline in this module goes
// through — cmd/tauir's `opt` subcommand and this package's own pipeline
// tests — so the decode/construct/traverse/Bytes() sequence each pass
// requires is written once.
func RunPass(name PassName, code []byte, maxID ssa.VarId, mod FunctionResolver, registry *types.Registry) ([]byte, ssa.VarId, error) {
	switch name {
	case PassConstProp:
		dec := ssa.NewDecoder(code, registry)
		cp := NewConstantPropagator(len(code), maxID)
		if err := dec.Traverse(cp); err != nil {
			return nil, 0, errors.Wrap(err, "tauir/ssa/opto: constprop pass")
		}
		return cp.Writer().Bytes(), cp.Writer().IdIndex(), nil

	case PassDCE:
		usageDec := ssa.NewDecoder(code, registry)
		ua := NewUsageAnalyzer()
		if err := usageDec.Traverse(ua); err != nil {
			return nil, 0, errors.Wrap(err, "tauir/ssa/opto: dce usage analysis")
		}
		dec := ssa.NewDecoder(code, registry)
		dce := NewDeadCodeEliminator(len(code), maxID, ua.UsageMap())
		if err := dec.Traverse(dce); err != nil {
			return nil, 0, errors.Wrap(err, "tauir/ssa/opto: dce pass")
		}
		return dce.Writer().Bytes(), dce.Writer().IdIndex(), nil

	case PassInline:
		if mod == nil {
			return nil, 0, errors.New("tauir/ssa/opto: inline pass requires a non-nil module resolver")
		}
		dec := ssa.NewDecoder(code, registry)
		in := NewInliner(len(code), maxID, mod, registry)
		if err := dec.Traverse(in); err != nil {
			return nil, 0, errors.Wrap(err, "tauir/ssa/opto: inline pass")
		}
		return in.Writer().Bytes(), in.Writer().IdIndex(), nil

	default:
		return nil, 0, errors.Wrapf(ErrUnknownPass, "%q", name)
	}
}

// RunPipeline chains RunPass over names in order, threading each pass's
// maxID into the next, and logs a structured trace entry per pass at
// Debug level (matching SPEC_FULL.md's ambient-stack logging convention).
func RunPipeline(log *logrus.Logger, functionName string, names []PassName, code []byte, maxID ssa.VarId, mod FunctionResolver, registry *types.Registry) ([]byte, error) {
	for _, name := range names {
		next, nextMax, err := RunPass(name, code, maxID, mod, registry)
		if err != nil {
			if log != nil {
				log.WithFields(logrus.Fields{
					"function": functionName,
					"pass":     name,
				}).WithError(err).Error("optimizer pass failed")
			}
			return nil, err
		}
		if log != nil {
			log.WithFields(logrus.Fields{
				"function":   functionName,
				"pass":       name,
				"bytesIn":    len(code),
				"bytesOut":   len(next),
				"maxIdAfter": nextMax,
			}).Debug("optimizer pass complete")
		}
		code, maxID = next, nextMax
	}
	return code, nil
}
