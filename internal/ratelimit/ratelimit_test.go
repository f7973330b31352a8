package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestUnlimitedNeverBlocks(t *testing.T) {
	p := Unlimited()
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unlimited pacer took %v", elapsed)
	}
}

func TestPacerSpacesCalls(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	p.Wait(ctx)
	p.Wait(ctx)
	p.Wait(ctx)
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected at least two intervals between three calls, got %v", elapsed)
	}
}

func TestPacerRespectsCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	p.Wait(ctx)
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestNilPacer(t *testing.T) {
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer should not fail: %v", err)
	}
	if p.Interval() != 0 {
		t.Error("nil pacer interval should be zero")
	}
}
