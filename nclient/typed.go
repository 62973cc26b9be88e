package nclient

import (
	"context"
	"encoding/json"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
)

// Typed wraps a Caller with Go types for its input and output.  An
// output that is not already an O is converted through JSON, so O
// should be shaped like the procedure's output.
func Typed[I, O any](call nrpc.Caller) func(ctx context.Context, input I) (O, error) {
	return func(ctx context.Context, input I) (O, error) {
		var out O
		v, err := call(ctx, input)
		if err != nil {
			return out, err
		}
		if o, ok := v.(O); ok {
			return o, nil
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return out, errors.Wrap(err, "re-encode output")
		}
		if err := json.Unmarshal(enc, &out); err != nil {
			return out, errors.Wrapf(err, "convert output to %T", out)
		}
		return out, nil
	}
}
