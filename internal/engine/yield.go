package engine

import (
	"context"
	"runtime"
	"time"
)

// Yielder runs between scheduler batches so other work gets a turn.
type Yielder interface {
	Yield(ctx context.Context) error
}

// YielderFunc adapts a function to Yielder.
type YielderFunc func(ctx context.Context) error

// Yield implements Yielder.
func (f YielderFunc) Yield(ctx context.Context) error {
	return f(ctx)
}

// GoschedYielder yields the processor.
type GoschedYielder struct{}

// Yield implements Yielder.
func (GoschedYielder) Yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// DelayYielder sleeps for Delay.
type DelayYielder struct {
	Delay time.Duration
}

// Yield implements Yielder.
func (y DelayYielder) Yield(ctx context.Context) error {
	if y.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(y.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
