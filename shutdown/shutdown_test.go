//go:build !windows

package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestContextCancelledBySignal(t *testing.T) {
	ctx, stop := Context(context.Background())
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGHUP")
	}
}
