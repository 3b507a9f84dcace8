package harness

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultWorkloadRate paces injected writes when the caller does not supply
// a rate. It is deliberately generous: the window deadline, not the pacing,
// bounds how much work a scenario injects.
const DefaultWorkloadRate rate.Limit = 200

// Workload issues client write operations against the cluster. Individual
// operation failures during a fault window are expected and swallowed at the
// batch level; only the absence of forward progress, verified externally,
// constitutes a scenario failure.
type Workload struct {
	client  Client
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
	seq int
}

// NewWorkload creates a workload generator writing through client, drawing
// key material from rng and pacing operations at opsPerSec (0 means
// DefaultWorkloadRate).
func NewWorkload(client Client, rng *rand.Rand, opsPerSec rate.Limit) *Workload {
	if opsPerSec <= 0 {
		opsPerSec = DefaultWorkloadRate
	}
	return &Workload{
		client:  client,
		limiter: rate.NewLimiter(opsPerSec, 1),
		rng:     rng,
	}
}

// nextKV generates a fresh key/value pair. The sequence number keeps keys
// unique across the run; the random suffix keeps values distinguishable when
// a key is rewritten.
func (w *Workload) nextKV() KV {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	return KV{
		Key:   fmt.Sprintf("key_%d", w.seq),
		Value: fmt.Sprintf("value_%d_%d", w.seq, w.rng.Int63()),
	}
}

// WriteKnownKV issues a single write and returns the pair written, used to
// establish a known baseline before injecting faults. Unlike the batch
// paths, a failure here is fatal: the cluster is healthy at baseline time.
func (w *Workload) WriteKnownKV(ctx context.Context) (KV, error) {
	kv := w.nextKV()
	if err := w.client.Write(ctx, kv); err != nil {
		return KV{}, errors.Wrapf(err, "baseline write of %q", kv.Key)
	}
	return kv, nil
}

// SendIndefiniteWrites launches intensity workers that issue writes until ctx
// is cancelled, then joins them all before returning. Cancellation is the
// normal exit and yields a nil error; per-operation failures are logged and
// swallowed because the target primary may be down by design.
func (w *Workload) SendIndefiniteWrites(ctx context.Context, intensity int) error {
	if intensity < 1 {
		return errors.Mark(errors.Newf("workload intensity %d: must be >= 1", intensity), ErrConfig)
	}

	var g errgroup.Group
	for i := 0; i < intensity; i++ {
		g.Go(func() error {
			for {
				if err := w.limiter.Wait(ctx); err != nil {
					return nil // window closed
				}
				kv := w.nextKV()
				if err := w.client.Write(ctx, kv); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logrus.Debugf("workload write %q failed: %v", kv.Key, err)
				}
			}
		})
	}
	return g.Wait()
}

// RunBounded runs SendIndefiniteWrites under an automatic cancellation after
// window elapses. The expiring deadline is the mechanism that bounds the
// injection, not an error; all workers are joined before RunBounded returns
// so no write leaks into the next scenario phase.
func (w *Workload) RunBounded(ctx context.Context, window time.Duration, intensity int) error {
	wctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	return w.SendIndefiniteWrites(wctx, intensity)
}
