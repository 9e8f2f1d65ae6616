package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/TrackBatch/config"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/BearBump/TrackBatch/internal/services/refresher"
	"github.com/BearBump/TrackBatch/internal/storage/numberfile"
	"github.com/stretchr/testify/require"
)

type staticNumbers []string

func (s staticNumbers) List(ctx context.Context) ([]string, error) { return s, nil }

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

type noopBatch struct{}

func (noopBatch) ProcessNumbers(ctx context.Context, numbers []string) []models.TrackingInfo {
	return nil
}

func testFactories(closed *[]string) workerFactories {
	return workerFactories{
		newNumbers: func(ctx context.Context, cfg *config.Config) (refresher.NumberSource, func(), error) {
			return staticNumbers{}, func() { *closed = append(*closed, "numbers") }, nil
		},
		newProducer: func(cfg *config.Config) (refresher.Producer, func()) {
			return noopProducer{}, func() { *closed = append(*closed, "producer") }
		},
		newBatch: func(cfg *config.Config) (refresher.Batcher, func()) {
			return noopBatch{}, func() { *closed = append(*closed, "batch") }
		},
	}
}

func TestDefaultWorkerFactories(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka:   config.KafkaConfig{Host: "localhost", Port: 9092},
		Storage: config.StorageConfig{NumbersFile: filepath.Join(t.TempDir(), "n.json")},
	}

	src, closeNumbers, err := f.newNumbers(context.Background(), cfg)
	require.NoError(t, err)
	defer closeNumbers()
	_, ok := src.(*numberfile.Store)
	require.True(t, ok)

	p, closeProducer := f.newProducer(cfg)
	require.NotNil(t, p)
	closeProducer()

	b, closeBatch := f.newBatch(cfg)
	require.NotNil(t, b)
	closeBatch()
}

func TestRunTrackWorker_ContextCanceled(t *testing.T) {
	var closed []string
	cfg := &config.Config{
		Kafka:      config.KafkaConfig{TrackingUpdatedTopicName: "t"},
		TrackBatch: config.TrackBatchConfig{WorkerPollIntervalSeconds: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrackWorker(ctx, cfg, testFactories(&closed))
	require.ErrorIs(t, err, context.Canceled)
	require.ElementsMatch(t, []string{"numbers", "producer", "batch"}, closed)
}

func TestPlannerFromConfig(t *testing.T) {
	p := plannerFromConfig(&config.Config{TrackBatch: config.TrackBatchConfig{
		WorkerNextCheckInTransitMinSeconds: 60,
		WorkerNextCheckInTransitMaxSeconds: 60,
		WorkerBackoff1Seconds:              10,
	}})
	cfg := p.Config()
	require.Equal(t, time.Minute, cfg.InTransitMinDelay)
	require.Equal(t, time.Minute, cfg.InTransitMaxDelay)
	require.Equal(t, 10*time.Second, cfg.Backoff1)
	require.Equal(t, 15*time.Minute, cfg.Backoff2)
}

func TestWorkerRouter(t *testing.T) {
	var closed []string
	r, closeFn, err := NewRefresher(context.Background(), &config.Config{}, testFactories(&closed))
	require.NoError(t, err)
	defer closeFn()

	h := newWorkerRouter(workerHTTPOpts{refresher: r, cfg: &config.Config{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"triggered":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st refresher.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.LastTriggerAt)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Contains(t, rec.Body.String(), `"fakeCarrier":true`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newWorkerRouter(workerHTTPOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunWorkerHTTPServer_Stops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(a string) { addrCh <- a },
		})
	}()

	resp, err := http.Get("http://" + <-addrCh + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker http server did not stop")
	}
}
