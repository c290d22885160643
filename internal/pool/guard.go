package pool

import "sync/atomic"

// guard excludes reentrant and concurrent entry. It never blocks.
type guard struct {
	held atomic.Bool
}

func (g *guard) enter() error {
	if !g.held.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	return nil
}

func (g *guard) exit() {
	g.held.Store(false)
}
