package module

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedMangledName is returned by DemangleFunctionName when the
// input contains no ':' or the text after its first ':' is not a run of
// 'A'/'S' letters each followed by decimal digits. The text before the
// ':' is not checked.
var ErrMalformedMangledName = errors.New("module: malformed mangled function name")

// MangleFunctionName builds the calling-convention-disambiguating suffix
// appended to an indirect call target's name: "A0:" followed by, for each
// argument in order, 'A' (register) or 'S' (stack) and its decimal
// register number or stack offset.
func MangleFunctionName(arguments []FunctionArgument) string {
	var b strings.Builder
	b.WriteString("A0:")
	for _, arg := range arguments {
		if arg.IsRegister {
			b.WriteByte('A')
		} else {
			b.WriteByte('S')
		}
		b.WriteString(strconv.FormatUint(arg.RegisterOrStackOffset, 10))
	}
	return b.String()
}

// DemangleFunctionName recovers the FunctionArgument list encoded by
// MangleFunctionName.
func DemangleFunctionName(mangledName string) ([]FunctionArgument, error) {
	colon := strings.IndexByte(mangledName, ':')
	if colon < 0 {
		return nil, errors.Wrapf(ErrMalformedMangledName, "%q", mangledName)
	}

	rest := mangledName[colon+1:]

	var args []FunctionArgument
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c != 'A' && c != 'S' {
			return nil, errors.Wrapf(ErrMalformedMangledName, "unexpected byte %q in %q", c, mangledName)
		}
		args = append(args, FunctionArgument{IsRegister: c == 'A'})
		i++
		start := i
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == start {
			return nil, errors.Wrapf(ErrMalformedMangledName, "missing digits in %q", mangledName)
		}
		n, err := strconv.ParseUint(rest[start:i], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing offset in %q", mangledName)
		}
		args[len(args)-1].RegisterOrStackOffset = n
		i--
	}
	return args, nil
}
