package config

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// hupListener owns the goroutine that re-reads the config file on
// SIGHUP. At most one listener is live at a time.
type hupListener struct {
	sigs chan os.Signal
	stop chan struct{}
	done chan struct{}
}

var (
	listenerMu sync.Mutex
	listener   *hupListener

	// reloading serializes reloads; a SIGHUP arriving while one is in
	// flight is dropped.
	reloading sync.Mutex
)

// SetupSignalHandler installs the SIGHUP listener. Calling it again
// replaces any previous listener.
func SetupSignalHandler() {
	l := &hupListener{
		sigs: make(chan os.Signal, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	listenerMu.Lock()
	prev := listener
	listener = l
	listenerMu.Unlock()

	if prev != nil {
		prev.shutdown()
	}

	signal.Notify(l.sigs, syscall.SIGHUP)
	go l.run()
}

// StopSignalHandler removes the listener and waits for its goroutine
// to exit. Safe to call when none is installed.
func StopSignalHandler() {
	listenerMu.Lock()
	l := listener
	listener = nil
	listenerMu.Unlock()

	if l != nil {
		l.shutdown()
	}
}

func (l *hupListener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.sigs:
			if !reloading.TryLock() {
				slog.Debug("SIGHUP received during config reload, dropped")
				continue
			}
			slog.Info("SIGHUP received, reloading config")
			_ = Reload() // keeps the previous config on failure
			reloading.Unlock()
		case <-l.stop:
			signal.Stop(l.sigs)
			return
		}
	}
}

func (l *hupListener) shutdown() {
	close(l.stop)
	<-l.done
}
