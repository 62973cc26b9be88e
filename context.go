package nrpc

import (
	"context"
)

// Context is the key/value record threaded through a call.  A nil
// Context means there is no context at all.
//
// Contexts are treated as immutable: merging always produces a new map.
type Context map[string]any

// MergeContext combines two contexts.  Keys in incoming win over keys
// in base.  A nil operand is the identity.
func MergeContext(base, incoming Context) Context {
	if base == nil {
		return incoming
	}
	if incoming == nil {
		return base
	}
	merged := make(Context, len(base)+len(incoming))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// ContextSource produces the initial Context for one call.  It is
// evaluated exactly once per call.
type ContextSource func(ctx context.Context) (Context, error)

// StaticContext is a ContextSource that always returns c.
func StaticContext(c Context) ContextSource {
	return func(context.Context) (Context, error) {
		return c, nil
	}
}

func (src ContextSource) resolve(ctx context.Context) (Context, error) {
	if src == nil {
		return nil, nil
	}
	return src(ctx)
}
