package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/peregrine/internal/bus"
	"github.com/opensource-finance/peregrine/internal/cache"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/provision"
)

// stubClient answers predictions; the embedded interface covers the
// methods batch scoring never touches.
type stubClient struct {
	domain.DetectorAPI
	calls atomic.Int64
}

func (s *stubClient) GetEventPrediction(ctx context.Context, in *domain.PredictionInput) (*domain.PredictionDetail, error) {
	s.calls.Add(1)
	detail := &domain.PredictionDetail{
		ModelScores: []domain.ModelScore{{Scores: map[string]float64{"score": 500}}},
	}
	detail.HTTPStatus = 200
	return detail, nil
}

type stubRepo struct {
	domain.Repository
}

func (stubRepo) SavePrediction(ctx context.Context, rec *domain.PredictionRecord) error {
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *bus.ChannelBus, *stubClient) {
	t.Helper()
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })
	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	client := &stubClient{}
	project := domain.ProjectConfig{
		Name:            "proj",
		EntityType:      "customer",
		EventType:       "transaction",
		ModelName:       "m",
		ModelVersion:    "1",
		ModelType:       domain.ModelTypeOnlineFraudInsights,
		DetectorName:    "d",
		DetectorVersion: "1",
	}
	p := provision.New(client, c, stubRepo{}, eventBus, project, slog.Default())

	return NewWorker(eventBus, p, slog.Default()), eventBus, client
}

func TestWorkerStartAndStop(t *testing.T) {
	w, _, _ := newTestWorker(t)

	if err := w.Start(Config{Projects: []string{"proj"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	stats = w.GetStats()
	if stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerProcessesBatch(t *testing.T) {
	w, eventBus, client := newTestWorker(t)

	if err := w.Start(Config{Projects: []string{"proj"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	var resultReceived atomic.Bool
	var resultPayload atomic.Pointer[[]byte]

	eventBus.Subscribe(context.Background(), "proj", domain.TopicBatchResult, func(ctx context.Context, msg *domain.Message) error {
		payload := msg.Payload
		resultPayload.Store(&payload)
		resultReceived.Store(true)
		return nil
	})

	time.Sleep(50 * time.Millisecond)

	req := BatchRequest{
		RequestID: "req-001",
		Events: []provision.BatchEvent{
			{EntityID: "c1", Timestamp: "2023-01-01T00:00:00Z"},
			{EntityID: "c2", Timestamp: "2023-01-02T00:00:00Z"},
		},
	}
	payload, _ := json.Marshal(req)
	if err := eventBus.Publish(context.Background(), "proj", domain.TopicBatchRequest, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !resultReceived.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !resultReceived.Load() {
		t.Fatal("expected batch result to be published")
	}

	var result BatchResult
	if err := json.Unmarshal(*resultPayload.Load(), &result); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}

	if result.RequestID != "req-001" {
		t.Errorf("expected requestId req-001, got %s", result.RequestID)
	}
	if result.Requested != 2 || result.Completed != 2 {
		t.Errorf("expected 2/2, got %d/%d", result.Completed, result.Requested)
	}
	if len(result.Predictions) != 2 {
		t.Errorf("expected 2 predictions, got %d", len(result.Predictions))
	}
	if n := client.calls.Load(); n != 2 {
		t.Errorf("expected 2 scoring calls, got %d", n)
	}
}

func TestWorkerPartialBatch(t *testing.T) {
	w, eventBus, _ := newTestWorker(t)

	if err := w.Start(Config{Projects: []string{"proj"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	var result atomic.Pointer[BatchResult]
	eventBus.Subscribe(context.Background(), "proj", domain.TopicBatchResult, func(ctx context.Context, msg *domain.Message) error {
		var r BatchResult
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			return err
		}
		result.Store(&r)
		return nil
	})

	time.Sleep(50 * time.Millisecond)

	req := BatchRequest{
		RequestID: "req-002",
		Events: []provision.BatchEvent{
			{EntityID: "c1", Timestamp: "2023-01-01T00:00:00Z"},
			{EntityID: "c2", Timestamp: "not-a-time"},
			{EntityID: "c3", Timestamp: "2023-01-03T00:00:00Z"},
		},
	}
	payload, _ := json.Marshal(req)
	eventBus.Publish(context.Background(), "proj", domain.TopicBatchRequest, payload)

	deadline := time.Now().Add(2 * time.Second)
	for result.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	r := result.Load()
	if r == nil {
		t.Fatal("expected batch result to be published")
	}

	if r.Requested != 3 {
		t.Errorf("expected 3 requested, got %d", r.Requested)
	}
	if r.Completed != 1 {
		t.Errorf("expected 1 completed before the bad row, got %d", r.Completed)
	}
}

func TestWorkerMultiProject(t *testing.T) {
	w, _, _ := newTestWorker(t)

	if err := w.Start(Config{Projects: []string{"proj-a", "proj-b"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions for 2 projects, got %d", stats.SubscriptionCount)
	}
}
