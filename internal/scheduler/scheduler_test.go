package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/job"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/testutil"
)

func counterJob(id string, enabled bool, n *atomic.Int32) Job {
	return Job{
		Definition: job.Definition{ID: id, Name: id, Enabled: enabled, Interval: time.Hour},
		Run: func(ctx context.Context) (map[string]interface{}, error) {
			n.Add(1)
			return map[string]interface{}{"ok": true}, nil
		},
	}
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(DefaultHistorySize)
	for i := 0; i < 150; i++ {
		h.Add(&job.Result{ID: fmt.Sprint(i), JobID: "a"})
	}

	if h.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", h.Len())
	}
	all := h.List("", 0)
	if len(all) != 100 {
		t.Fatalf("List() = %d results, want 100", len(all))
	}
	if all[0].ID != "149" || all[99].ID != "50" {
		t.Errorf("List() spans %s..%s, want 149..50", all[0].ID, all[99].ID)
	}
}

func TestHistory_FilterAndLimit(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 4; i++ {
		jobID := "a"
		if i%2 == 1 {
			jobID = "b"
		}
		h.Add(&job.Result{ID: fmt.Sprint(i), JobID: jobID})
	}

	tests := []struct {
		name  string
		jobID string
		limit int
		want  []string
	}{
		{"all", "", 0, []string{"3", "2", "1", "0"}},
		{"one job", "a", 0, []string{"2", "0"}},
		{"limited", "", 3, []string{"3", "2", "1"}},
		{"unknown job", "c", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.List(tt.jobID, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("List() = %d results, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("List()[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	if last := h.Last("b"); last == nil || last.ID != "3" {
		t.Errorf("Last(b) = %v, want 3", last)
	}
	if h.Last("c") != nil {
		t.Error("Last(c) should be nil")
	}
}

func TestScheduler_HistoryKeepsNewest(t *testing.T) {
	var n atomic.Int32
	s := New([]Job{counterJob("a", true, &n)}, Options{}, logger.Nop())

	for i := 0; i < 150; i++ {
		if _, err := s.TriggerJob(context.Background(), "a"); err != nil {
			t.Fatalf("TriggerJob() error = %v", err)
		}
	}

	if got := len(s.History("", 0)); got != 100 {
		t.Errorf("History() = %d results, want 100", got)
	}
	status := s.GetStatus()
	if status.Jobs[0].RunCount != 150 {
		t.Errorf("RunCount = %d, want 150", status.Jobs[0].RunCount)
	}
	if status.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", status.HistorySize)
	}
}

func TestScheduler_FailuresAreCaptured(t *testing.T) {
	jobs := []Job{
		{
			Definition: job.Definition{ID: "panics", Enabled: true, Interval: time.Hour},
			Run: func(ctx context.Context) (map[string]interface{}, error) {
				panic("boom")
			},
		},
		{
			Definition: job.Definition{ID: "fails", Enabled: true, Interval: time.Hour},
			Run: func(ctx context.Context) (map[string]interface{}, error) {
				return map[string]interface{}{"tenants": 2}, fmt.Errorf("all 2 tenants failed")
			},
		},
		{
			Definition: job.Definition{ID: "ok", Enabled: true, Interval: time.Hour},
			Run: func(ctx context.Context) (map[string]interface{}, error) {
				return nil, nil
			},
		},
	}
	recorder := testutil.NewMockJobRepository()
	s := New(jobs, Options{Recorder: recorder}, logger.Nop())

	results := s.RunAllChecks(context.Background())
	if len(results) != 3 {
		t.Fatalf("RunAllChecks() = %d results, want 3", len(results))
	}

	tests := []struct {
		idx     int
		success bool
	}{
		{0, false},
		{1, false},
		{2, true},
	}
	for _, tt := range tests {
		res := results[tt.idx]
		if res.Success != tt.success {
			t.Errorf("%s success = %v, want %v (error %q)", res.JobID, res.Success, tt.success, res.Error)
		}
		if !tt.success && res.Error == "" {
			t.Errorf("%s should carry an error", res.JobID)
		}
		if res.CompletedAt.Before(res.StartedAt) {
			t.Errorf("%s completed before it started", res.JobID)
		}
		if res.Trigger != job.TriggerManual {
			t.Errorf("%s trigger = %s, want manual", res.JobID, res.Trigger)
		}
	}
	if results[1].Details["tenants"] != 2 {
		t.Errorf("failed job details = %v, want tenant count kept", results[1].Details)
	}
	if recorder.Count() != 3 {
		t.Errorf("recorded executions = %d, want 3", recorder.Count())
	}
}

func TestScheduler_TriggerUnknownJob(t *testing.T) {
	s := New(nil, Options{}, logger.Nop())
	_, err := s.TriggerJob(context.Background(), "nope")
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("TriggerJob() error = %v, want NOT_FOUND", err)
	}
	if len(s.History("", 0)) != 0 {
		t.Error("unknown trigger should not add history")
	}
}

func TestScheduler_RunAllSkipsDisabled(t *testing.T) {
	var a, b atomic.Int32
	s := New([]Job{counterJob("a", true, &a), counterJob("b", false, &b)}, Options{}, logger.Nop())

	results := s.RunAllChecks(context.Background())
	if len(results) != 1 || a.Load() != 1 || b.Load() != 0 {
		t.Errorf("RunAllChecks() ran a=%d b=%d, want only a", a.Load(), b.Load())
	}

	// disabled jobs may still be triggered by hand
	if _, err := s.TriggerJob(context.Background(), "b"); err != nil || b.Load() != 1 {
		t.Errorf("TriggerJob(b) = %v, runs %d, want one run", err, b.Load())
	}
}

func TestScheduler_StartStop(t *testing.T) {
	var n atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var cancelled atomic.Bool

	jobs := []Job{
		counterJob("quick", true, &n),
		{
			Definition: job.Definition{ID: "slow", Enabled: true, Interval: time.Hour},
			Run: func(ctx context.Context) (map[string]interface{}, error) {
				close(started)
				<-ctx.Done()
				cancelled.Store(true)
				<-release
				return nil, ctx.Err()
			},
		},
	}
	s := New(jobs, Options{StartupDelay: 10 * time.Millisecond}, logger.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("second Start() error = %v, want CONFLICT", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup run did not reach the slow job")
	}
	if n.Load() != 1 {
		t.Errorf("quick job runs = %d, want 1 from the startup run", n.Load())
	}

	status := s.GetStatus()
	if !status.Running || status.StartedAt == nil {
		t.Errorf("status = %+v, want running", status)
	}
	for _, js := range status.Jobs {
		if js.NextRun == nil {
			t.Errorf("job %s has no next run", js.ID)
		}
	}

	done := s.Stop()
	select {
	case <-done.Done():
		t.Fatal("Stop() finished before the in-flight job returned")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not finish after the in-flight job returned")
	}
	if !cancelled.Load() {
		t.Error("in-flight job should see its context cancelled")
	}
	if s.IsRunning() {
		t.Error("scheduler still running after Stop()")
	}

	last := s.History("slow", 1)
	if len(last) != 1 || last[0].Success || last[0].Trigger != job.TriggerStartup {
		t.Errorf("slow job history = %+v, want one failed startup run", last)
	}
}

func TestScheduler_TriggerWhileStopping(t *testing.T) {
	var n atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	jobs := []Job{
		counterJob("quick", false, &n),
		{
			Definition: job.Definition{ID: "slow", Enabled: true, Interval: time.Hour},
			Run: func(ctx context.Context) (map[string]interface{}, error) {
				close(started)
				<-release
				return nil, nil
			},
		},
	}
	s := New(jobs, Options{StartupDelay: time.Millisecond}, logger.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup run did not reach the slow job")
	}

	done := s.Stop()
	if _, err := s.TriggerJob(context.Background(), "quick"); !errors.HasCode(err, errors.ErrCodePrecondition) {
		t.Errorf("TriggerJob() while stopping error = %v, want PRECONDITION_FAILED", err)
	}
	if err := s.Start(); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("Start() while stopping error = %v, want CONFLICT", err)
	}
	if n.Load() != 0 {
		t.Errorf("quick job runs = %d, want 0 while stopping", n.Load())
	}

	close(release)
	select {
	case <-done.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not finish after the in-flight job returned")
	}

	if _, err := s.TriggerJob(context.Background(), "quick"); err != nil || n.Load() != 1 {
		t.Errorf("TriggerJob() after stop = %v, runs %d, want one run", err, n.Load())
	}
}

func TestScheduler_StartRejectsBadInterval(t *testing.T) {
	jobs := []Job{{Definition: job.Definition{ID: "bad", Enabled: true}}}
	s := New(jobs, Options{StartupDelay: -1}, logger.Nop())
	if err := s.Start(); !errors.HasCode(err, errors.ErrCodeScheduling) {
		t.Errorf("Start() error = %v, want SCHEDULING_ERROR", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should not run after a failed start")
	}
}
