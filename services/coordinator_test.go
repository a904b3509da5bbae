package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bin-dates/models"
	"bin-dates/utils"
)

type fakeFetcher struct {
	mu      sync.Mutex
	results []*models.CollectionResult
	errs    []error
	calls   int32
	gate    chan struct{}
}

func (f *fakeFetcher) FetchDates(ctx context.Context, uprn models.UPRN) (*models.CollectionResult, error) {
	n := int(atomic.AddInt32(&f.calls, 1)) - 1
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	return f.results[n], f.errs[n]
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, s models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func march(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }

func sampleResult() *models.CollectionResult {
	return &models.CollectionResult{Domestic: march(1), Recycling: march(8), Garden: march(15)}
}

func quietLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard, utils.LevelError) }

func newTestCoordinator(f DateFetcher, pubs ...*recordingPublisher) *Coordinator {
	cfg := CoordinatorConfig{
		UPRN:         "100030002069",
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
		Policy:       fixedPolicy(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC), time.UTC),
	}
	for _, p := range pubs {
		cfg.Publishers = append(cfg.Publishers, p)
	}
	return NewCoordinator(f, cfg, quietLogger())
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{sampleResult()}, errs: []error{nil}}
	pub := &recordingPublisher{}
	c := newTestCoordinator(f, pub)

	snap, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.CycleID == "" {
		t.Error("expected a cycle id")
	}
	if !snap.IsToday[models.Domestic] || snap.IsToday[models.Recycling] || snap.IsToday[models.Garden] {
		t.Errorf("IsToday: got %v; want only domestic", snap.IsToday)
	}
	if pub.count() != 1 {
		t.Errorf("publisher calls: got %d, want 1", pub.count())
	}

	got, ok := c.Snapshot()
	if !ok || got.Result != *sampleResult() {
		t.Errorf("Snapshot: got %+v ok=%v", got, ok)
	}
}

func TestRefreshFailureKeepsLastKnownGood(t *testing.T) {
	boom := errors.New("status 500")
	f := &fakeFetcher{
		results: []*models.CollectionResult{sampleResult(), nil},
		errs:    []error{nil, boom},
	}
	pub := &recordingPublisher{}
	c := newTestCoordinator(f, pub)

	first, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := c.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("second Refresh: got %v, want %v", err, boom)
	}

	snap, ok := c.Snapshot()
	if !ok || snap.CycleID != first.CycleID {
		t.Errorf("expected last known good snapshot %s to survive, got %s (ok=%v)", first.CycleID, snap.CycleID, ok)
	}
	if pub.count() != 1 {
		t.Errorf("failed refresh must not publish; publisher calls: %d", pub.count())
	}

	st := c.Status()
	if !st.Available || st.ConsecutiveFailures != 1 || st.LastError == "" {
		t.Errorf("Status: got %+v", st)
	}
}

func TestStatusBeforeFirstSuccess(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{nil}, errs: []error{errors.New("down")}}
	c := newTestCoordinator(f)

	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Snapshot(); ok {
		t.Error("Snapshot should not be available before a successful refresh")
	}
	if st := c.Status(); st.Available {
		t.Error("Status.Available should be false")
	}
}

func TestPublisherErrorDoesNotFailRefresh(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{sampleResult()}, errs: []error{nil}}
	bad := &recordingPublisher{err: errors.New("disk full")}
	good := &recordingPublisher{}
	c := newTestCoordinator(f, bad, good)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if good.count() != 1 {
		t.Error("later publishers should still receive the snapshot")
	}
}

func TestConcurrentRefreshSharesOneFetch(t *testing.T) {
	f := &fakeFetcher{
		results: []*models.CollectionResult{sampleResult()},
		errs:    []error{nil},
		gate:    make(chan struct{}),
	}
	c := newTestCoordinator(f)

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := c.Refresh(context.Background())
			if err != nil {
				t.Errorf("Refresh: %v", err)
				return
			}
			ids[i] = snap.CycleID
		}(i)
	}

	// Let every goroutine join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if n := atomic.LoadInt32(&f.calls); n != 1 {
		t.Errorf("fetch calls: got %d, want 1", n)
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Errorf("callers got different cycles: %v", ids)
			break
		}
	}
}

func TestRunFailsWhenFirstRefreshFails(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{nil}, errs: []error{errors.New("down")}}
	c := newTestCoordinator(f)

	if err := c.Run(context.Background()); err == nil {
		t.Error("Run should return the first refresh error")
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{sampleResult()}, errs: []error{nil}}
	pub := &recordingPublisher{}
	c := newTestCoordinator(f, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for pub.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d refreshes before deadline", pub.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRefreshIsIdempotentForSameUpstream(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{sampleResult()}, errs: []error{nil}}
	c := newTestCoordinator(f)

	a, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.Result != b.Result {
		t.Errorf("results differ: %+v vs %+v", a.Result, b.Result)
	}
	if a.CycleID == b.CycleID {
		t.Error("each refresh should get its own cycle id")
	}
}

func TestJoinedRefreshSurvivesFirstCallerCancel(t *testing.T) {
	f := &fakeFetcher{
		results: []*models.CollectionResult{sampleResult()},
		errs:    []error{nil},
		gate:    make(chan struct{}),
	}
	c := newTestCoordinator(f)

	apiCtx, cancelAPI := context.WithCancel(context.Background())
	apiDone := make(chan struct{})
	go func() {
		defer close(apiDone)
		_, _ = c.Refresh(apiCtx)
	}()
	for atomic.LoadInt32(&f.calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	tickDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		tickDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelAPI()
	time.Sleep(20 * time.Millisecond)
	close(f.gate)

	if err := <-tickDone; err != nil {
		t.Fatalf("ticker refresh: got %v, want nil", err)
	}
	<-apiDone
	if st := c.Status(); !st.Available || st.ConsecutiveFailures != 0 || st.LastError != "" {
		t.Errorf("Status: got %+v; want a clean success", st)
	}
	if n := atomic.LoadInt32(&f.calls); n != 1 {
		t.Errorf("fetch calls: got %d, want 1", n)
	}
}

func TestSnapshotFlagsFollowDayRollover(t *testing.T) {
	f := &fakeFetcher{results: []*models.CollectionResult{sampleResult()}, errs: []error{nil}}
	var mu sync.Mutex
	now := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	c := NewCoordinator(f, CoordinatorConfig{
		UPRN:    "100030002069",
		Timeout: time.Second,
		Policy: DayPolicy{Location: time.UTC, Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}},
	}, quietLogger())

	first, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if first.IsToday[models.Domestic] {
		t.Fatal("domestic should not be due on 29 Feb")
	}

	mu.Lock()
	now = time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
	mu.Unlock()

	snap, ok := c.Snapshot()
	if !ok {
		t.Fatal("snapshot should be available")
	}
	if !snap.IsToday[models.Domestic] {
		t.Error("domestic should be due after midnight without a new fetch")
	}
	if snap.CycleID != first.CycleID {
		t.Errorf("cycle changed: got %s, want %s", snap.CycleID, first.CycleID)
	}
	if n := atomic.LoadInt32(&f.calls); n != 1 {
		t.Errorf("fetch calls: got %d, want 1", n)
	}
}
