package lifecycle_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/structa/switchboard/pkg/lifecycle"
)

func TestReadyAfterStartup(t *testing.T) {
	lc := lifecycle.New()

	started := make(chan struct{})
	lc.OnStartup(func() { <-started })

	if lc.Ready() {
		t.Fatal("ready before startup hooks completed")
	}

	close(started)
	lc.WaitForStartup()

	if !lc.Ready() {
		t.Fatal("not ready after startup hooks completed")
	}
}

func TestShutdownRunsHooks(t *testing.T) {
	lc := lifecycle.New()

	var ran atomic.Bool
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		ran.Store(true)
	})

	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !ran.Load() {
		t.Error("shutdown hook never ran")
	}
}

func TestShutdownTimeout(t *testing.T) {
	lc := lifecycle.New()

	release := make(chan struct{})
	lc.OnShutdown(func() { <-release })
	defer close(release)

	if err := lc.Shutdown(10 * time.Millisecond); err == nil {
		t.Error("expected a timeout error for a stuck shutdown hook")
	}
}
