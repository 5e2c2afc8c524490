package service

import (
	"context"
	"testing"
)

func TestAdmissionTryAcquireAndRelease(t *testing.T) {
	a := NewAdmission(1, nil)

	release, ok := a.TryAcquire(context.Background())
	if !ok {
		t.Fatal("expected first TryAcquire to succeed")
	}

	if _, ok := a.TryAcquire(context.Background()); ok {
		t.Fatal("expected second TryAcquire to fail while at capacity")
	}

	release()

	if _, ok := a.TryAcquire(context.Background()); !ok {
		t.Fatal("expected TryAcquire to succeed again after release")
	}
}
