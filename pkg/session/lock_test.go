package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/photobooth/pkg/adapters/memory"
	"github.com/aretw0/photobooth/pkg/ports"
)

type idleBooth struct {
	ports.BoothSession
}

func (idleBooth) Close(context.Context) error { return nil }

func TestManager_LockLifecycle(t *testing.T) {
	factory := func(ctx context.Context, id string) (ports.BoothSession, error) {
		return idleBooth{}, nil
	}
	mgr := NewManager(memory.NewStore(), factory)
	ctx := context.Background()
	count := 10000

	// 1. Create and Delete many sessions
	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, _, _ = mgr.CreateWithID(ctx, sid)
		_ = mgr.Delete(ctx, sid)
	}

	// 2. Count locks remaining in map
	lockCount := len(mgr.locks)
	t.Logf("Sessions Created: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
