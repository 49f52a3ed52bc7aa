package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

type fakeCollector struct {
	err error
}

func (f *fakeCollector) Collect(context.Context) (sampler.Snapshot, error) {
	if f.err != nil {
		return sampler.Snapshot{}, f.err
	}
	return sampler.Snapshot{
		Timestamp: time.Now().Truncate(time.Second),
		CPU:       &sampler.CPUStats{TotalCores: 1},
	}, nil
}

type fakeSaver struct {
	mu    sync.Mutex
	saved int
	err   error
	done  chan struct{}
}

func (f *fakeSaver) Save(context.Context, sampler.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved++
	if f.done != nil && f.saved == 1 {
		close(f.done)
	}
	return nil
}

type fakePublisher struct {
	published int
	err       error
}

func (f *fakePublisher) PublishSnapshot(context.Context, sampler.Snapshot) error {
	f.published++
	return f.err
}

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name          string
		collectErr    error
		saveErr       error
		publishErr    error
		wantErr       bool
		wantSaved     int
		wantPublished int
	}{
		{
			name:          "collect store publish",
			wantSaved:     1,
			wantPublished: 1,
		},
		{
			name:       "collect fails",
			collectErr: sampler.ErrNoData,
			wantErr:    true,
		},
		{
			name:    "store fails",
			saveErr: errors.New("db down"),
			wantErr: true,
		},
		{
			name:          "publish failure does not fail run",
			publishErr:    errors.New("no responders"),
			wantSaved:     1,
			wantPublished: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := &fakeSaver{err: tt.saveErr}
			pub := &fakePublisher{err: tt.publishErr}

			s, err := New(zap.NewNop(), &fakeCollector{err: tt.collectErr}, saver, pub, time.Minute, context.Background())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer s.Shutdown()

			err = s.RunOnce(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunOnce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if saver.saved != tt.wantSaved {
				t.Errorf("saved = %d, want %d", saver.saved, tt.wantSaved)
			}
			if pub.published != tt.wantPublished {
				t.Errorf("published = %d, want %d", pub.published, tt.wantPublished)
			}
		})
	}
}

func TestRunOnce_NoPublisher(t *testing.T) {
	saver := &fakeSaver{}
	s, err := New(zap.NewNop(), &fakeCollector{}, saver, nil, time.Minute, context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Shutdown()

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if saver.saved != 1 {
		t.Errorf("saved = %d, want 1", saver.saved)
	}
}

func TestNew_InvalidInterval(t *testing.T) {
	if _, err := New(zap.NewNop(), &fakeCollector{}, &fakeSaver{}, nil, 0, context.Background()); err == nil {
		t.Error("New() with zero interval succeeded")
	}
}

func TestStart_RunsImmediately(t *testing.T) {
	saver := &fakeSaver{done: make(chan struct{})}
	s, err := New(zap.NewNop(), &fakeCollector{}, saver, nil, time.Hour, context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.Start()
	defer s.Shutdown()

	select {
	case <-saver.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job did not run after Start")
	}
}
