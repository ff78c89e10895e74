package bandwidth

import (
	"context"
	"pivotrepair/internal/global"
	"pivotrepair/internal/logctx"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// Token bucket shared by every relay of a node
type Shaper struct {
	mu      sync.RWMutex
	limiter *rate.Limiter // nil = unlimited
	rate    uint64
}

// Starts unlimited
func NewShaper() (new *Shaper) {
	new = &Shaper{}
	return
}

// Sets the relay rate in bytes per second. 0 removes the limit.
func (shaper *Shaper) SetRate(bytesPerSec uint64) {
	shaper.mu.Lock()
	defer shaper.mu.Unlock()

	shaper.rate = bytesPerSec
	if bytesPerSec == 0 {
		shaper.limiter = nil
		return
	}
	// Burst covers one second of traffic
	shaper.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

func (shaper *Shaper) Rate() (bytesPerSec uint64) {
	shaper.mu.RLock()
	defer shaper.mu.RUnlock()
	bytesPerSec = shaper.rate
	return
}

// Waits until n bytes may be sent. Sends larger than the burst are split into burst sized waits.
func (shaper *Shaper) Wait(ctx context.Context, n int) (err error) {
	shaper.mu.RLock()
	limiter := shaper.limiter
	shaper.mu.RUnlock()

	if limiter == nil || n <= 0 {
		return
	}
	burst := limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		err = limiter.WaitN(ctx, chunk)
		if err != nil {
			return
		}
		n -= chunk
	}
	return
}

// Loads the rate for this node from the profile's current entry and applies it
func (shaper *Shaper) Apply(ctx context.Context, profile *Profile, nodeID int64, replaced bool) (err error) {
	bytesPerSec, err := profile.Rate(nodeID, replaced)
	if err != nil {
		return
	}
	shaper.SetRate(bytesPerSec)

	if bytesPerSec == 0 {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
			"relay bandwidth unlimited (replacement node: %t)\n", replaced)
	} else {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
			"relay bandwidth set to %s/s (replacement node: %t)\n", humanize.IBytes(bytesPerSec), replaced)
	}
	return
}
