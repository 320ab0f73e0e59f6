package signals

import (
	"context"
	"os"
	"os/signal"
)

// Foreground turns the given OS signals into foreground notifications.
// The returned channel holds at most one pending notification; bursts
// collapse into one. It is closed when ctx is done.
//
// On Unix the host typically passes SIGCONT (resumed after suspend) and
// SIGUSR1 (explicit nudge from another process).
func Foreground(ctx context.Context, sigs ...os.Signal) <-chan struct{} {
	out := make(chan struct{}, 1)
	in := make(chan os.Signal, 1)
	signal.Notify(in, sigs...)

	go func() {
		defer close(out)
		defer signal.Stop(in)
		for {
			select {
			case <-ctx.Done():
				return
			case <-in:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
