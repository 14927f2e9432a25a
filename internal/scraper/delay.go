package scraper

import (
	"context"
	"math/rand"
	"time"
)

// DelayKind selects one of the human-pacing delay bands.
type DelayKind int

// Delay bands, slowest weighted highest so sustained runs read as a person
// working through pages rather than a burst of requests.
const (
	KindQuick DelayKind = iota
	KindNormal
	KindSlow
)

type delayBand struct {
	min, max time.Duration
}

var delayBands = map[DelayKind]delayBand{
	KindQuick:  {3 * time.Second, 4 * time.Second},
	KindNormal: {4 * time.Second, 8 * time.Second},
	KindSlow:   {8 * time.Second, 18 * time.Second},
}

// kindWeights biases the random pick toward Normal and Slow.
var kindWeights = []DelayKind{
	KindQuick,
	KindNormal, KindNormal, KindNormal,
	KindSlow, KindSlow,
}

// RandomKind picks a delay kind by weighted random choice.
func RandomKind() DelayKind {
	return kindWeights[rand.Intn(len(kindWeights))]
}

// Sample returns a randomized duration for the kind: uniform within the
// band, then perturbed by +/-20% jitter. Stateless and safe for concurrent
// callers.
func Sample(kind DelayKind) time.Duration {
	band, ok := delayBands[kind]
	if !ok {
		band = delayBands[KindNormal]
	}
	base := band.min + time.Duration(rand.Int63n(int64(band.max-band.min)))
	jitter := (rand.Float64() * 0.4) - 0.2
	return time.Duration(float64(base) * (1 + jitter))
}

// Wait sleeps for d or until the context finishes, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
