package trade

import (
	"github.com/ZkAGI/pawpad-rofl/internal/signal"
)

// Registry maps an asset to the executor for its chain. It is built once at
// startup and only read afterwards.
type Registry map[signal.Asset]Executor

func (r Registry) Lookup(asset signal.Asset) (Executor, bool) {
	if r == nil {
		return nil, false
	}
	ex, ok := r[asset]
	return ex, ok && ex != nil
}
