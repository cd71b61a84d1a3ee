package source

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle enforces a per-adapter request rate. Public scholarly APIs
// publish per-client limits (OpenAlex 10 rps, arXiv 1 req/3s, Crossref
// 50 rps polite pool); adapters wait here before every outbound call.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing rps requests per second with
// the given burst.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request slot is available or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
