package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// NotifyShutdown returns a context canceled on the first SIGINT or SIGTERM.
// A second signal exits the process with ExitInterrupted. Call stop to
// release the signal handler.
func NotifyShutdown(parent context.Context) (ctx context.Context, stop func()) {
	return notifyShutdown(parent, func() { os.Exit(ExitInterrupted) })
}

func notifyShutdown(parent context.Context, forceExit func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)

		select {
		case <-sigChan:
			cancel()
		case <-done:
			return
		}

		select {
		case <-sigChan:
			forceExit()
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(done) })
		cancel()
	}
}
