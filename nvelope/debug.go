package nvelope

import (
	"strings"

	"github.com/muir/nject"
)

// DebugChain logs, at debug level, the providers that nject included
// in a handler chain.  It is a tiny wrapper around nject.Debugging.
var DebugChain = nject.Required(nject.Provide("debug-chain",
	func(log BasicLogger, d *nject.Debugging) {
		log.Debug("handler chain", map[string]interface{}{
			"included": strings.Join(d.NamesIncluded, ", "),
		})
	}))
