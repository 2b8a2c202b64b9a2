package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastOpts = LifecycleOptions{
	QRTimeout:            time.Minute,
	MaxReconnectAttempts: 3,
	BackoffBase:          time.Millisecond,
	BackoffMax:           5 * time.Millisecond,
}

func createConnected(t *testing.T, h *harness, id string) {
	t.Helper()
	_, err := h.registry.Create(context.Background(), id, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.state(id) == domainInstance.StateConnected
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_CapacityEvictsLeastRecentlyActive(t *testing.T) {
	h := newHarness(t, 3, fastOpts, readyOnConnect)
	ctx := context.Background()

	for _, id := range []string{"wa1", "wa2", "wa3"} {
		createConnected(t, h, id)
	}

	base := time.Now()
	h.touch("wa3", base.Add(2*time.Hour))
	h.touch("wa1", base.Add(3*time.Hour))

	_, err := h.registry.Create(ctx, "wa4", "")
	require.NoError(t, err)

	ids := []string{}
	for _, s := range h.registry.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"wa1", "wa3", "wa4"}, ids)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.factory.get("wa2").closes))
}

func TestRegistry_SizeNeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	h := newHarness(t, capacity, fastOpts, readyOnConnect)

	for i := 0; i < 10; i++ {
		var expectedVictim string
		if h.registry.Len() == capacity {
			expectedVictim = byActivity(h.registry.all())[0].handle.ID()
		}

		createConnected(t, h, fmt.Sprintf("wa%d", i))
		assert.LessOrEqual(t, h.registry.Len(), capacity)

		if expectedVictim != "" {
			_, err := h.registry.Lookup(expectedVictim)
			assert.ErrorIs(t, err, pkgError.ErrUnknownInstance, "victim %s should be gone", expectedVictim)
		}
	}
}

func TestRegistry_CapacityExceededWhenNoCandidate(t *testing.T) {
	// sin ready: la instancia queda emparejando y no se puede desalojar
	h := newHarness(t, 1, fastOpts, nil)
	ctx := context.Background()

	_, err := h.registry.Create(ctx, "wa1", "")
	require.NoError(t, err)

	_, err = h.registry.Create(ctx, "wa2", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgError.ErrCapacityExceeded))

	var capErr pkgError.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, capErr.Max)
	assert.Equal(t, 1, h.registry.Len())
}

func TestRegistry_PairingInstanceOutlivesNewerConnectedOne(t *testing.T) {
	h := newHarness(t, 2, fastOpts, nil)
	ctx := context.Background()

	_, err := h.registry.Create(ctx, "pairing", "")
	require.NoError(t, err)
	h.factory.onConnect = readyOnConnect
	createConnected(t, h, "online")
	h.touch("online", time.Now().Add(time.Hour))

	_, err = h.registry.Create(ctx, "next", "")
	require.NoError(t, err)
	_, err = h.registry.Lookup("online")
	assert.ErrorIs(t, err, pkgError.ErrUnknownInstance)
	_, err = h.registry.Lookup("pairing")
	assert.NoError(t, err)

	// pasada la ventana del QR vuelve a ser candidata
	h.registry.now = func() time.Time { return time.Now().Add(fastOpts.QRTimeout + time.Minute) }
	_, err = h.registry.Create(ctx, "last", "")
	require.NoError(t, err)
	_, err = h.registry.Lookup("pairing")
	assert.ErrorIs(t, err, pkgError.ErrUnknownInstance)
}

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	h := newHarness(t, 2, fastOpts, readyOnConnect)
	ctx := context.Background()

	createConnected(t, h, "wa1")
	inst, err := h.registry.Create(ctx, "wa1", "other label")
	require.NoError(t, err)

	assert.Equal(t, "wa1", inst.Label)
	assert.Equal(t, domainInstance.StateConnected, inst.State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.factory.calls))
}

func TestRegistry_DestroyIsIdempotent(t *testing.T) {
	h := newHarness(t, 2, fastOpts, readyOnConnect)
	ctx := context.Background()

	var hooks int32
	h.lifecycle.OnDestroyed = func(string) { atomic.AddInt32(&hooks, 1) }

	createConnected(t, h, "wa1")

	first := h.registry.Destroy(ctx, "wa1")
	second := h.registry.Destroy(ctx, "wa1")

	assert.True(t, first)
	assert.False(t, second)
	assert.Empty(t, h.registry.List())
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.factory.get("wa1").closes))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hooks))
	assert.True(t, h.notes.has(func(n domainInstance.Notification) bool {
		return n.InstanceID == "wa1" && n.State == domainInstance.StateDestroyed
	}))

	assert.False(t, h.registry.Destroy(ctx, "never-existed"))
}

func TestRegistry_ListIsSnapshot(t *testing.T) {
	h := newHarness(t, 2, fastOpts, readyOnConnect)
	createConnected(t, h, "wa1")

	list := h.registry.List()
	require.Len(t, list, 1)
	assert.Equal(t, domainInstance.Snapshot{ID: "wa1", Label: "wa1", Connected: true, Enabled: true}, list[0])

	list[0].Label = "mutated"
	assert.Equal(t, "wa1", h.registry.List()[0].Label)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	h := newHarness(t, 1, fastOpts, nil)

	_, err := h.registry.Lookup("nope")
	var miss pkgError.UnknownInstanceError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, "nope", miss.InstanceID)
}

func TestRegistry_CreateRacingControlAndDestroy(t *testing.T) {
	h := newHarness(t, 4, fastOpts, nil)
	ctx := context.Background()

	const rounds = 50
	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("wa%d", i)
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = h.registry.Create(ctx, id, "")
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = h.lifecycle.Reconnect(ctx, id)
				_ = h.lifecycle.SetEnabled(ctx, id, j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.registry.Destroy(ctx, id)
			}
		}()
		wg.Wait()
		h.registry.Destroy(ctx, id)
	}

	stopped := make(chan struct{})
	go func() {
		h.lifecycle.Shutdown(ctx)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("instance goroutines outlived their sessions")
	}

	assert.Zero(t, h.registry.Len())
	for i := 0; i < rounds; i++ {
		a := h.factory.get(fmt.Sprintf("wa%d", i))
		require.NotNil(t, a)
		assert.Equal(t, int32(1), atomic.LoadInt32(&a.closes))
	}
}
