package crawler

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// minRateFloor is the lowest rate the adaptive mode will back off to.
	minRateFloor = 5.0

	// minFixedRate is the lowest rate a fixed, user-supplied rate may use.
	minFixedRate = 1.0

	// maxRateCeiling caps both modes.
	maxRateCeiling = 100.0

	// emaAlpha weights a new RTT observation against the running average.
	emaAlpha = 0.2

	// recoveryFactor is the step-up applied after each fast response.
	recoveryFactor = 1.1

	// backoffFactor bounds how far a single slow response can cut the rate.
	backoffFactor = 0.5

	// defaultTargetRTT is the response time the adaptive mode aims for.
	defaultTargetRTT = 500 * time.Millisecond
)

// AdaptiveLimiter paces page fetches. In adaptive mode it follows an
// exponential moving average of response times: slow servers get fewer
// requests per second, fast servers gradually more. A fixed rate set with
// SetRate turns adaptation off.
type AdaptiveLimiter struct {
	limiter   *rate.Limiter
	targetRTT time.Duration

	mu          sync.RWMutex
	emaRTT      time.Duration
	currentRate float64
	disabled    bool
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initialRPS.
func NewAdaptiveLimiter(initialRPS int, targetRTT time.Duration) *AdaptiveLimiter {
	if targetRTT <= 0 {
		targetRTT = defaultTargetRTT
	}
	clamped := clampRate(float64(initialRPS), minRateFloor)

	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(rate.Limit(clamped), burstFor(clamped)),
		targetRTT:   targetRTT,
		currentRate: clamped,
		emaRTT:      targetRTT,
	}
}

// Wait blocks until the next fetch may start or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// ObserveRTT feeds one response time into the moving average and adjusts the
// rate. It is a no-op for fixed rates.
func (a *AdaptiveLimiter) ObserveRTT(rtt time.Duration) {
	if rtt <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disabled {
		return
	}

	a.emaRTT = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(a.emaRTT))

	// ratio < 1 means the server is slower than the target.
	ratio := float64(a.targetRTT) / float64(a.emaRTT)

	var next float64
	if ratio < 1 {
		next = max(a.currentRate*ratio, a.currentRate*backoffFactor)
	} else {
		next = a.currentRate * recoveryFactor
	}
	next = clampRate(next, minRateFloor)

	if math.Abs(next-a.currentRate) > 0.1 {
		a.apply(next)
	}
}

// SetRate fixes the rate at rps and disables adaptation.
func (a *AdaptiveLimiter) SetRate(rps int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.disabled = true
	a.apply(clampRate(float64(rps), minFixedRate))
}

// Adaptive reports whether the limiter currently follows response times.
func (a *AdaptiveLimiter) Adaptive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.disabled
}

// CurrentRate returns the current rate in requests per second, rounded.
func (a *AdaptiveLimiter) CurrentRate() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int(math.Round(a.currentRate))
}

// TargetRTT returns the response time the adaptive mode aims for.
func (a *AdaptiveLimiter) TargetRTT() time.Duration {
	return a.targetRTT
}

// CurrentEMA returns the moving average of observed response times.
func (a *AdaptiveLimiter) CurrentEMA() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emaRTT
}

// apply must be called with mu held.
func (a *AdaptiveLimiter) apply(rps float64) {
	a.currentRate = rps
	a.limiter.SetLimit(rate.Limit(rps))
	a.limiter.SetBurst(burstFor(rps))
}

func burstFor(rps float64) int {
	return int(math.Ceil(rps))
}

func clampRate(rps, floor float64) float64 {
	return min(max(rps, floor), maxRateCeiling)
}
