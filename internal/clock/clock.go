package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now(ctx context.Context) time.Time
}

type SystemClock struct{}

func (SystemClock) Now(context.Context) time.Time {
	return time.Now().UTC()
}

func New() Clock { return SystemClock{} }

var Module = fx.Module("clock",
	fx.Provide(New),
)

// Fixed is a test clock pinned to a settable instant.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now(context.Context) time.Time { return f.T }

func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
