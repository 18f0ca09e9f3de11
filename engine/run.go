package engine

import (
	"context"
	"errors"
)

// Run starts the engine and ticks it once per frame received on frames. It
// returns nil when frames is closed or the engine was destroyed elsewhere,
// the context error when ctx ends, and the escalation error if the engine
// gives up. Skipped ticks are logged and do not stop the loop.
func (e *Engine) Run(ctx context.Context, frames <-chan FrameState) error {
	if err := e.Start(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fs, ok := <-frames:
			if !ok {
				return nil
			}
			err := e.Tick(fs)
			var terr *TransientRenderError
			switch {
			case err == nil, errors.As(err, &terr) && !errors.Is(err, ErrEscalated):
			case errors.Is(err, ErrEscalated):
				return err
			case errors.Is(err, ErrDestroyed):
				return nil
			default:
				return err
			}
		}
	}
}
