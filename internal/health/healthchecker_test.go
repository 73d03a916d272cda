package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name    string
	healthy atomic.Int32
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() == 1 }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) { <-ctx.Done() }

func TestServiceHealthChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeChecker{name: "store"}
	b := &fakeChecker{name: "searchindex"}
	a.healthy.Store(1)
	b.healthy.Store(1)

	svc := NewServiceHealthChecker(zerolog.Nop(), a, b)
	wg := svc.StartAll(ctx, 10*time.Millisecond)

	waitTrue(t, func() bool { return svc.IsHealthy() })

	b.healthy.Store(0)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	b.healthy.Store(1)
	waitTrue(t, func() bool { return svc.IsHealthy() })

	cancel()
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) HealthPing(context.Context) error { return p.err }

type embedder struct {
	vec []float32
	err error
}

func (e embedder) Embed(context.Context, string) ([]float32, error) { return e.vec, e.err }

func TestProbeChecker(t *testing.T) {
	ctx := context.Background()

	ok := NewProbeChecker("redis", PingProbe(pinger{}), zerolog.Nop(), 0)
	assert.False(t, ok.IsHealthy())
	assert.NoError(t, ok.Check(ctx))
	assert.True(t, ok.IsHealthy())

	bad := NewProbeChecker("store", PingProbe(pinger{err: errors.New("closed")}), zerolog.Nop(), time.Second)
	assert.Error(t, bad.Check(ctx))
	assert.False(t, bad.IsHealthy())

	emb := NewProbeChecker("embedder", PingProbe(embedder{vec: []float32{1}}), zerolog.Nop(), 0)
	assert.NoError(t, emb.Check(ctx))

	empty := NewProbeChecker("embedder", PingProbe(embedder{}), zerolog.Nop(), 0)
	assert.Error(t, empty.Check(ctx))

	none := NewProbeChecker("x", PingProbe(struct{}{}), zerolog.Nop(), 0)
	assert.Error(t, none.Check(ctx))
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
