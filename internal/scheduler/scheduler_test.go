package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/sources/grib"
	"github.com/skysim/noawx/internal/websocket"
	"github.com/skysim/noawx/pkg/logger"
)

type fakeRefresher struct {
	needs    atomic.Bool
	refreshN atomic.Int32
	err      error
}

func (f *fakeRefresher) NeedsRefresh() bool { return f.needs.Load() }

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.refreshN.Add(1)
	return f.err
}

type fakeScanner struct {
	mu      sync.Mutex
	rescanN atomic.Int32
	cycles  map[grib.Kind]string
	next    map[grib.Kind]string
}

func (f *fakeScanner) Rescan() error {
	f.rescanN.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next != nil {
		f.cycles = f.next
		f.next = nil
	}
	return nil
}

func (f *fakeScanner) Cycle(kind grib.Kind) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles[kind]
}

type fakeHub struct {
	mu       sync.Mutex
	messages []*websocket.Message
}

func (f *fakeHub) Broadcast(m *websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
}

func TestRefreshMetarSkipsWhenNotDue(t *testing.T) {
	ref := &fakeRefresher{}
	s := New(config.Default(), ref, &fakeScanner{}, nil, logger.NewNop())

	s.refreshMetar()
	assert.Equal(t, int32(0), ref.refreshN.Load())

	ref.needs.Store(true)
	s.refreshMetar()
	assert.Equal(t, int32(1), ref.refreshN.Load())
}

func TestRefreshMetarToleratesFailure(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("upstream down")}
	ref.needs.Store(true)
	s := New(config.Default(), ref, &fakeScanner{}, nil, logger.NewNop())

	// Must not panic. The failure is logged and the job retries next tick.
	s.refreshMetar()
	s.refreshMetar()
	assert.Equal(t, int32(2), ref.refreshN.Load())
}

func TestStartStop(t *testing.T) {
	scan := &fakeScanner{}
	s := New(config.Default(), &fakeRefresher{}, scan, nil, logger.NewNop())

	require.NoError(t, s.Start())
	s.Stop()
}

func TestRescanCycles(t *testing.T) {
	scan := &fakeScanner{}
	s := New(config.Default(), &fakeRefresher{}, scan, nil, logger.NewNop())

	s.rescanCycles()
	assert.Equal(t, int32(1), scan.rescanN.Load())
}

func TestRescanBroadcastsCycleChange(t *testing.T) {
	scan := &fakeScanner{
		cycles: map[grib.Kind]string{grib.KindGFS: "2026082600"},
		next:   map[grib.Kind]string{grib.KindGFS: "2026082606"},
	}
	hub := &fakeHub{}
	s := New(config.Default(), &fakeRefresher{}, scan, hub, logger.NewNop())

	s.rescanCycles()

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.messages, 1)
	assert.Equal(t, websocket.MessageTypeCycleChange, hub.messages[0].Type)
	assert.Equal(t, "2026082606", hub.messages[0].Data["cycle"])
}

func TestRescanQuietWhenCycleUnchanged(t *testing.T) {
	scan := &fakeScanner{cycles: map[grib.Kind]string{grib.KindGFS: "2026082600"}}
	hub := &fakeHub{}
	s := New(config.Default(), &fakeRefresher{}, scan, hub, logger.NewNop())

	s.rescanCycles()

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.messages)
}
