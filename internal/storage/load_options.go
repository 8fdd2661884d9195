package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// LoadOptions are bulk-load knobs. They are parsed from the extra CLI args
// forwarded after "--", using mongoimport spellings.
type LoadOptions struct {
	// BatchSize overrides the run's documents-per-insert. 0 keeps it.
	BatchSize int
	// IgnoreBlanks omits fields whose value is "".
	IgnoreBlanks bool
	// Ordered stops a batch at the first failing document.
	Ordered bool
	// BypassDocumentValidation skips server-side validation (Mongo only).
	BypassDocumentValidation bool
}

// ParseLoadArgs parses forwarded bulk-load args. Both "--flag=value" and
// "--flag value" forms are accepted. Unknown args are an error.
func ParseLoadArgs(args []string) (LoadOptions, error) {
	var o LoadOptions
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, val, hasVal := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name == "" {
			return o, fmt.Errorf("unexpected load argument %q", arg)
		}

		switch name {
		case "batchSize", "b":
			if !hasVal {
				if i+1 >= len(args) {
					return o, fmt.Errorf("%s requires a value", arg)
				}
				i++
				val = args[i]
			}
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return o, fmt.Errorf("%s: invalid batch size %q", arg, val)
			}
			o.BatchSize = n

		case "ignoreBlanks":
			b, err := boolValue(val, hasVal)
			if err != nil {
				return o, fmt.Errorf("%s: %w", arg, err)
			}
			o.IgnoreBlanks = b

		case "ordered", "maintainInsertionOrder":
			b, err := boolValue(val, hasVal)
			if err != nil {
				return o, fmt.Errorf("%s: %w", arg, err)
			}
			o.Ordered = b

		case "bypassDocumentValidation":
			b, err := boolValue(val, hasVal)
			if err != nil {
				return o, fmt.Errorf("%s: %w", arg, err)
			}
			o.BypassDocumentValidation = b

		default:
			return o, fmt.Errorf("unsupported load argument %q", arg)
		}
	}
	return o, nil
}

func boolValue(val string, hasVal bool) (bool, error) {
	if !hasVal {
		return true, nil
	}
	return strconv.ParseBool(val)
}
