package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/walmartlabs/concord-sub001/internal/process"
	"github.com/walmartlabs/concord-sub001/internal/sweeper/mocks"
)

func TestSweepFiresElapsedDeadlines(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	mockLC := mocks.NewMockLifecycleService(ctrl)
	s := New(mockStore, mockLC, Config{})
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	expired := []*process.Instance{
		{ID: "inst-1", Status: process.StatusRunning},
		{ID: "inst-2", Status: process.StatusSuspended},
	}

	mockStore.EXPECT().QueryExpired(ctx, now, s.cfg.ScanBatch).Return(expired, nil)
	mockLC.EXPECT().Timeout(ctx, "inst-1").Return(nil)
	mockLC.EXPECT().Timeout(ctx, "inst-2").Return(nil)
	mockStore.EXPECT().QueryTimedOutMissingHandler(ctx, s.cfg.ScanBatch).Return(nil, nil)

	s.Sweep(ctx)
}

func TestSweepContinuesPastTimeoutError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	mockLC := mocks.NewMockLifecycleService(ctrl)
	s := New(mockStore, mockLC, Config{})
	ctx := context.Background()

	expired := []*process.Instance{
		{ID: "inst-1"},
		{ID: "inst-2"},
	}

	mockStore.EXPECT().QueryExpired(ctx, gomock.Any(), gomock.Any()).Return(expired, nil)
	mockLC.EXPECT().Timeout(ctx, "inst-1").Return(errors.New("db locked"))
	mockLC.EXPECT().Timeout(ctx, "inst-2").Return(nil)
	mockStore.EXPECT().QueryTimedOutMissingHandler(ctx, gomock.Any()).Return(nil, nil)

	s.Sweep(ctx)
}

func TestSweepRetriesMissingHandlerSpawns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	mockLC := mocks.NewMockLifecycleService(ctrl)
	s := New(mockStore, mockLC, Config{})
	ctx := context.Background()

	parent := &process.Instance{ID: "parent-1", Status: process.StatusTimedOut}

	mockStore.EXPECT().QueryExpired(ctx, gomock.Any(), gomock.Any()).Return(nil, nil)
	mockStore.EXPECT().QueryTimedOutMissingHandler(ctx, gomock.Any()).Return([]*process.Instance{parent}, nil)
	mockLC.EXPECT().EnsureTimeoutHandler(ctx, parent).Return(nil)

	s.Sweep(ctx)
}

func TestSweepScanErrorAbortsPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	mockLC := mocks.NewMockLifecycleService(ctrl)
	s := New(mockStore, mockLC, Config{})
	ctx := context.Background()

	mockStore.EXPECT().QueryExpired(ctx, gomock.Any(), gomock.Any()).Return(nil, errors.New("db gone"))
	// Neither Timeout nor the handler retry phase runs.

	s.Sweep(ctx)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 50, cfg.ScanBatch)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockStoreService(ctrl)
	mockLC := mocks.NewMockLifecycleService(ctrl)
	s := New(mockStore, mockLC, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
