package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackBatch/internal/broker/messages"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeNumbers struct {
	mu    sync.Mutex
	list  []string
	err   error
	calls int
}

func (f *fakeNumbers) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.list, f.err
}

type fakeBatch struct {
	mu     sync.Mutex
	calls  [][]string
	result func(n string) models.TrackingInfo
}

func (b *fakeBatch) ProcessNumbers(ctx context.Context, numbers []string) []models.TrackingInfo {
	b.mu.Lock()
	b.calls = append(b.calls, numbers)
	b.mu.Unlock()
	out := make([]models.TrackingInfo, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, b.result(n))
	}
	return out
}

type fakeProducer struct {
	mu    sync.Mutex
	topic string
	msgs  []messages.TrackingUpdated
	keys  []string
	fails int
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails > 0 {
		p.fails--
		return errors.New("kafka not ready")
	}
	var m messages.TrackingUpdated
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}
	p.topic = topic
	p.msgs = append(p.msgs, m)
	p.keys = append(p.keys, string(key))
	return nil
}

func delivered(n string) models.TrackingInfo {
	return models.TrackingInfo{
		ID: n, Status: "Delivered",
		Timeline: []models.TimelineStep{{Label: "Package has been delivered", Completed: true, Milestone: models.MilestoneDelivered}},
	}
}

func newTestRefresher(numbers []string, result func(string) models.TrackingInfo) (*Refresher, *fakeBatch, *fakeProducer, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fb := &fakeBatch{result: result}
	fp := &fakeProducer{}
	r := New(&fakeNumbers{list: numbers}, fb, fp, "tracking.updated").WithPublishRetries(1)
	r.now = func() time.Time { return now }
	return r, fb, fp, &now
}

func TestRefresher_RunOnce_PublishesAndSchedules(t *testing.T) {
	r, fb, fp, now := newTestRefresher([]string{"A", "B"}, func(n string) models.TrackingInfo {
		if n == "B" {
			return models.ErrorInfo(n, "Server error: 503")
		}
		return delivered(n)
	})

	r.RunOnce(context.Background())
	require.Len(t, fb.calls, 1)
	require.Equal(t, []string{"A", "B"}, fb.calls[0])

	require.Len(t, fp.msgs, 2)
	require.Equal(t, "tracking.updated", fp.topic)
	require.Equal(t, []string{"A", "B"}, fp.keys)
	require.Equal(t, fp.msgs[0].BatchID, fp.msgs[1].BatchID)
	require.NotEmpty(t, fp.msgs[0].BatchID)
	require.True(t, fp.msgs[1].Tracking.HasError)

	next, ok := r.NextCheckAt("A")
	require.True(t, ok)
	require.Equal(t, now.Add(365*24*time.Hour), next)
	next, ok = r.NextCheckAt("B")
	require.True(t, ok)
	require.Equal(t, now.Add(5*time.Minute), next)

	st := r.Stats()
	require.EqualValues(t, 2, st.TotalChecked)
	require.EqualValues(t, 2, st.TotalPublished)
	require.Equal(t, 2, st.Scheduled)
}

func TestRefresher_RunOnce_NormalizedIDKeepsResult(t *testing.T) {
	r, _, fp, now := newTestRefresher([]string{"abc123", "x 9"}, func(n string) models.TrackingInfo {
		return delivered(strings.ToUpper(strings.ReplaceAll(n, " ", "")))
	})

	r.RunOnce(context.Background())
	require.Len(t, fp.msgs, 2)
	require.Equal(t, []string{"abc123", "x 9"}, fp.keys)
	for _, m := range fp.msgs {
		require.False(t, m.Tracking.HasError)
		require.Equal(t, "Delivered", m.Tracking.Status)
	}

	next, ok := r.NextCheckAt("abc123")
	require.True(t, ok)
	require.Equal(t, now.Add(365*24*time.Hour), next)
}

func TestPairResults_ExactFirstThenLeftovers(t *testing.T) {
	results := []models.TrackingInfo{delivered("B1"), delivered("A"), models.ErrorInfo("C", "Server error: 500")}
	got := pairResults([]string{"A", "b1", "C", "D"}, results)

	require.Len(t, got, 3)
	require.Equal(t, "A", got["A"].ID)
	require.Equal(t, "b1", got["b1"].ID)
	require.False(t, got["b1"].HasError)
	require.True(t, got["C"].HasError)
	_, ok := got["D"]
	require.False(t, ok)
}

func TestRefresher_RunOnce_OnlyDueAndBackoffGrows(t *testing.T) {
	r, fb, _, now := newTestRefresher([]string{"A", "B"}, func(n string) models.TrackingInfo {
		if n == "B" {
			return models.ErrorInfo(n, "Network error: timeout")
		}
		return delivered(n)
	})
	ctx := context.Background()

	r.RunOnce(ctx)
	*now = now.Add(6 * time.Minute)
	r.RunOnce(ctx)
	require.Len(t, fb.calls, 2)
	require.Equal(t, []string{"B"}, fb.calls[1])

	next, _ := r.NextCheckAt("B")
	require.Equal(t, now.Add(15*time.Minute), next)

	// ещё не пора
	*now = now.Add(time.Minute)
	r.RunOnce(ctx)
	require.Len(t, fb.calls, 2)
}

func TestRefresher_RunOnce_DropsRemovedNumbers(t *testing.T) {
	r, _, _, _ := newTestRefresher([]string{"A"}, delivered)
	r.RunOnce(context.Background())
	require.Equal(t, 1, r.Stats().Scheduled)

	r.numbers = &fakeNumbers{list: []string{}}
	r.RunOnce(context.Background())
	require.Equal(t, 0, r.Stats().Scheduled)
}

func TestRefresher_RunOnce_BatchSizeLimit(t *testing.T) {
	r, fb, _, _ := newTestRefresher([]string{"A", "B", "C", "A"}, delivered)
	r.WithSettings(time.Second, 2)

	r.RunOnce(context.Background())
	require.Equal(t, []string{"A", "B"}, fb.calls[0])
	r.RunOnce(context.Background())
	require.Equal(t, []string{"C"}, fb.calls[1])
}

func TestRefresher_RunOnce_ListError(t *testing.T) {
	r, fb, _, _ := newTestRefresher(nil, delivered)
	r.numbers = &fakeNumbers{err: errors.New("db down")}

	r.RunOnce(context.Background())
	require.Empty(t, fb.calls)
	require.Equal(t, "db down", r.Stats().LastError)
}

func TestRefresher_Publish_Retries(t *testing.T) {
	r, _, fp, _ := newTestRefresher([]string{"A"}, delivered)
	r.WithPublishRetries(3)
	fp.fails = 2

	r.RunOnce(context.Background())
	require.Len(t, fp.msgs, 1)
	require.EqualValues(t, 0, r.Stats().TotalErrors)
}

func TestRefresher_Publish_GivesUp(t *testing.T) {
	r, _, fp, _ := newTestRefresher([]string{"A"}, delivered)
	fp.fails = 5

	r.RunOnce(context.Background())
	require.Empty(t, fp.msgs)
	require.EqualValues(t, 1, r.Stats().TotalErrors)
	require.Equal(t, "kafka not ready", r.Stats().LastError)
}

func TestRefresher_Run_StopsOnContextCancel(t *testing.T) {
	nums := &fakeNumbers{list: []string{}}
	r := New(nums, &fakeBatch{result: delivered}, &fakeProducer{}, "t").WithSettings(5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	nums.mu.Lock()
	defer nums.mu.Unlock()
	require.GreaterOrEqual(t, nums.calls, 1)
}

func TestRefresher_Trigger(t *testing.T) {
	r := New(&fakeNumbers{}, &fakeBatch{result: delivered}, &fakeProducer{}, "t")
	r.Trigger()
	r.Trigger() // не блокируется
	require.NotNil(t, r.Stats().LastTriggerAt)
}
