package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubStatusProvider struct {
	statuses []*TaskStatus
	errs     []error
	calls    int
}

func (s *stubStatusProvider) CreateIndexingTask(ctx context.Context, sourceURL string) (string, string, error) {
	return "", "", errors.New("not implemented")
}

func (s *stubStatusProvider) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.statuses) {
		return s.statuses[i], nil
	}
	return s.statuses[len(s.statuses)-1], nil
}

func (s *stubStatusProvider) FetchArtifacts(ctx context.Context, videoID string) (*ProviderArtifacts, error) {
	return nil, errors.New("not implemented")
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestPoller(p VideoProvider, clock *fakeClock) *Poller {
	return NewPoller(p, PollerConfig{
		BaseInterval: 5 * time.Second,
		MaxInterval:  60 * time.Second,
		Multiplier:   1.5,
	}, testLogger(), WithClock(clock.Now, clock.Sleep))
}

func TestPollUntilReady_ReturnsVideoID(t *testing.T) {
	provider := &stubStatusProvider{statuses: []*TaskStatus{
		{Status: TaskStatusPending},
		{Status: TaskStatusIndexing},
		{Status: TaskStatusReady, VideoID: "vid-1"},
	}}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	videoID, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if videoID != "vid-1" {
		t.Fatalf("expected vid-1, got %s", videoID)
	}

	want := []time.Duration{5 * time.Second, 7500 * time.Millisecond}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), clock.sleeps)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Fatalf("sleep %d: expected %s, got %s", i, want[i], clock.sleeps[i])
		}
	}
}

func TestPollUntilReady_TimeoutWithinBound(t *testing.T) {
	provider := &stubStatusProvider{statuses: []*TaskStatus{{Status: TaskStatusIndexing}}}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	timeout := 90 * time.Second

	_, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", timeout)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.LastStatus != TaskStatusIndexing {
		t.Fatalf("expected last status indexing, got %s", timeoutErr.LastStatus)
	}

	elapsed := clock.now.Sub(start)
	if elapsed < timeout {
		t.Fatalf("gave up early after %s", elapsed)
	}
	if elapsed > timeout+60*time.Second {
		t.Fatalf("waited past timeout + max interval: %s", elapsed)
	}
	for _, d := range clock.sleeps {
		if d > 60*time.Second {
			t.Fatalf("sleep %s exceeded max interval", d)
		}
	}
}

func TestPollUntilReady_FailedUsesProviderMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"provider message", "unsupported codec", "unsupported codec"},
		{"default message", "", "Indexing failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider := &stubStatusProvider{statuses: []*TaskStatus{{Status: TaskStatusFailed, Message: tc.message}}}
			clock := &fakeClock{now: time.Now()}

			_, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", time.Minute)
			var procErr *ProviderProcessingError
			if !errors.As(err, &procErr) {
				t.Fatalf("expected ProviderProcessingError, got %v", err)
			}
			if !strings.Contains(procErr.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, procErr.Error())
			}
		})
	}
}

func TestPollUntilReady_ReadyWithoutVideoID(t *testing.T) {
	provider := &stubStatusProvider{statuses: []*TaskStatus{{Status: TaskStatusReady}}}
	clock := &fakeClock{now: time.Now()}

	_, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", time.Minute)
	var procErr *ProviderProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProviderProcessingError, got %v", err)
	}
}

func TestPollUntilReady_UnknownStatusKeepsPolling(t *testing.T) {
	provider := &stubStatusProvider{statuses: []*TaskStatus{
		{Status: "transcoding"},
		{Status: TaskStatusReady, VideoID: "vid-2"},
	}}
	clock := &fakeClock{now: time.Now()}

	videoID, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", time.Minute)
	if err != nil || videoID != "vid-2" {
		t.Fatalf("expected vid-2, got %q (%v)", videoID, err)
	}
}

func TestPollUntilReady_TransientErrorsRetried(t *testing.T) {
	provider := &stubStatusProvider{
		errs: []error{
			&ProviderRequestError{Op: "get task", StatusCode: 503},
			&ProviderRequestError{Op: "get task", Err: errors.New("connection reset")},
		},
		statuses: []*TaskStatus{nil, nil, {Status: TaskStatusReady, VideoID: "vid-3"}},
	}
	clock := &fakeClock{now: time.Now()}

	videoID, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", time.Minute)
	if err != nil || videoID != "vid-3" {
		t.Fatalf("expected vid-3, got %q (%v)", videoID, err)
	}
}

func TestPollUntilReady_ClientErrorAborts(t *testing.T) {
	provider := &stubStatusProvider{
		errs:     []error{&ProviderRequestError{Op: "get task", StatusCode: 404}},
		statuses: []*TaskStatus{{Status: TaskStatusReady, VideoID: "never"}},
	}
	clock := &fakeClock{now: time.Now()}

	_, err := newTestPoller(provider, clock).PollUntilReady(context.Background(), "task-1", time.Minute)
	var reqErr *ProviderRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected ProviderRequestError, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single status call, got %d", provider.calls)
	}
}

func TestPollUntilReady_ContextCancelled(t *testing.T) {
	provider := &stubStatusProvider{statuses: []*TaskStatus{{Status: TaskStatusPending}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(provider, PollerConfig{BaseInterval: time.Millisecond}, testLogger())
	_, err := p.PollUntilReady(ctx, "task-1", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
