// Package worker provides async batch prediction processing for the
// Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/provision"
)

// Worker consumes batch prediction requests from the EventBus, scores
// them through the provisioner, and publishes the results.
type Worker struct {
	bus         domain.EventBus
	provisioner *provision.Provisioner
	logger      *slog.Logger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Projects is the list of projects to process.
	Projects []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, provisioner *provision.Provisioner, logger *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		provisioner: provisioner,
		logger:      logger.With("component", "worker"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing batch requests for the given projects.
func (w *Worker) Start(cfg Config) error {
	for _, project := range cfg.Projects {
		if err := w.startProjectWorker(project); err != nil {
			w.logger.Error("failed to start worker for project",
				"project", project,
				"error", err,
			)
			continue
		}
	}

	w.logger.Info("workers started",
		"project_count", len(cfg.Projects),
	)

	return nil
}

// startProjectWorker subscribes one project's batch request topic.
func (w *Worker) startProjectWorker(project string) error {
	sub, err := w.bus.Subscribe(w.ctx, project, domain.TopicBatchRequest, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, project, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("project worker started",
		"project", project,
		"topic", domain.TopicBatchRequest,
	)

	return nil
}

// BatchRequest is the message payload for an async batch prediction.
type BatchRequest struct {
	RequestID string                 `json:"requestId"`
	Events    []provision.BatchEvent `json:"events"`
}

// BatchResult is published once a batch has been scored. Completed may
// be lower than Requested when a row failed mid-batch.
type BatchResult struct {
	RequestID   string               `json:"requestId"`
	Requested   int                  `json:"requested"`
	Completed   int                  `json:"completed"`
	Predictions []*domain.Prediction `json:"predictions"`
}

// processBatch scores one batch request and publishes the result.
func (w *Worker) processBatch(ctx context.Context, project string, msg *domain.Message) error {
	start := time.Now()

	var req BatchRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse batch request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	predictions := w.provisioner.BatchPredict(ctx, req.Events)

	result := BatchResult{
		RequestID:   req.RequestID,
		Requested:   len(req.Events),
		Completed:   len(predictions),
		Predictions: predictions,
	}

	payload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, project, domain.TopicBatchResult, payload); err != nil {
		w.logger.Error("failed to publish batch result",
			"request_id", req.RequestID,
			"error", err,
		)
		return err
	}

	w.logger.Info("batch processed",
		"request_id", req.RequestID,
		"requested", result.Requested,
		"completed", result.Completed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
