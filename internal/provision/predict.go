package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// timestampLayouts are the accepted input forms for event timestamps,
// tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// normalizeTimestamp parses a raw timestamp value and reformats it to
// the RFC 3339 UTC form the remote service expects.
func normalizeTimestamp(raw string) (string, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", fmt.Errorf("unparseable timestamp %q", raw)
}

// Predict issues one scoring call. A fresh event ID is generated per
// call; an empty entity ID is sent as "unknown". The result merges the
// model's score fields with the rule-evaluation outcomes.
func (p *Provisioner) Predict(ctx context.Context, entityID string, timestamp string, variables map[string]string) (*domain.Prediction, error) {
	if entityID == "" {
		entityID = "unknown"
	}

	ts, err := normalizeTimestamp(timestamp)
	if err != nil {
		return nil, err
	}

	in := &domain.PredictionInput{
		DetectorID:        p.project.DetectorName,
		DetectorVersionID: p.project.DetectorVersion,
		EventID:           uuid.New().String(),
		EventTypeName:     p.project.EventType,
		EventTimestamp:    ts,
		Entities: []domain.PredictedEntity{{
			EntityType: p.project.EntityType,
			EntityID:   entityID,
		}},
		EventVariables: variables,
	}

	detail, err := p.client.GetEventPrediction(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("get event prediction: %w", err)
	}

	prediction := &domain.Prediction{
		EventID:     in.EventID,
		Scores:      make(map[string]float64),
		RuleResults: detail.RuleResults,
	}
	for _, ms := range detail.ModelScores {
		for name, score := range ms.Scores {
			prediction.Scores[name] = score
		}
	}

	p.persistPrediction(ctx, prediction)
	return prediction, nil
}

// persistPrediction journals a scored event, announces it, and bumps
// the rate counter. All bookkeeping, none of it fatal.
func (p *Provisioner) persistPrediction(ctx context.Context, prediction *domain.Prediction) {
	rec := &domain.PredictionRecord{
		ID:          uuid.New().String(),
		Project:     p.project.Name,
		EventID:     prediction.EventID,
		Scores:      prediction.Scores,
		RuleResults: prediction.RuleResults,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.repo.SavePrediction(ctx, rec); err != nil {
		p.logger.Warn("failed to persist prediction", "event_id", prediction.EventID, "error", err)
	}

	payload := fmt.Sprintf(`{"eventId":%q}`, prediction.EventID)
	if err := p.bus.Publish(ctx, p.project.Name, domain.TopicPredictionScored, []byte(payload)); err != nil {
		p.logger.Warn("failed to publish prediction event", "error", err)
	}

	if _, err := p.cache.IncrementCounter(ctx, p.project.Name, "predictions", time.Minute); err != nil {
		p.logger.Warn("failed to bump prediction counter", "error", err)
	}
}

// BatchEvent is one row of a batch prediction request.
type BatchEvent struct {
	EntityID  string            `json:"entityId"`
	Timestamp string            `json:"timestamp"`
	Variables map[string]string `json:"variables"`
}

// BatchPredict scores events sequentially. A failing row stops the
// batch with a logged warning; predictions collected before the
// failure are returned.
func (p *Provisioner) BatchPredict(ctx context.Context, events []BatchEvent) []*domain.Prediction {
	predictions := make([]*domain.Prediction, 0, len(events))
	for i, event := range events {
		prediction, err := p.Predict(ctx, event.EntityID, event.Timestamp, event.Variables)
		if err != nil {
			p.logger.Warn("batch prediction aborted",
				"row", i,
				"completed", len(predictions),
				"error", err)
			return predictions
		}
		predictions = append(predictions, prediction)
	}
	return predictions
}
