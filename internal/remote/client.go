// Package remote implements the managed fraud-detection service
// client. Every operation is one JSON-over-HTTP call: POST to the
// service endpoint with the operation name in the X-Peregrine-Target
// header, matching the service's action-dispatch convention. There is
// no retry layer. Failures propagate to the caller as errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/peregrine/internal/domain"
)

var tracer = otel.Tracer("peregrine-remote")

// Headers the service expects on every call.
const (
	TargetHeader = "X-Peregrine-Target"
	APIKeyHeader = "X-Api-Key"
	RegionHeader = "X-Region"
)

// Client is the JSON-over-HTTP implementation of domain.DetectorAPI.
type Client struct {
	endpoint string
	apiKey   string
	region   string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a detector service client from config.
func NewClient(cfg domain.RemoteConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		region:   cfg.Region,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "remote"),
	}
}

// call issues one operation. The request body is the JSON-encoded
// input; the response body, when out is non-nil, is decoded into out.
// The returned status is the HTTP status code; codes >= 400 are
// errors, with the body carried in the error message.
func (c *Client) call(ctx context.Context, operation string, in, out any) (int, error) {
	ctx, span := tracer.Start(ctx, "remote."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("remote.operation", operation)))
	defer span.End()

	body := bytes.NewReader(nil)
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TargetHeader, operation)
	req.Header.Set(RegionHeader, c.region)
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("remote call",
		"operation", operation,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("%s: remote returned %d: %s", operation, resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) op(ctx context.Context, operation string, in any) (*domain.OpResponse, error) {
	code, err := c.call(ctx, operation, in, nil)
	if err != nil {
		return nil, err
	}
	return &domain.OpResponse{HTTPStatus: code}, nil
}

// nameInput is the shared request shape for delete-by-name operations.
type nameInput struct {
	Name string `json:"name"`
}

func (c *Client) PutEntityType(ctx context.Context, et *domain.EntityType) (*domain.OpResponse, error) {
	return c.op(ctx, "PutEntityType", et)
}

func (c *Client) GetEntityTypes(ctx context.Context) (*domain.EntityTypeList, error) {
	var out domain.EntityTypeList
	code, err := c.call(ctx, "GetEntityTypes", nil, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) DeleteEntityType(ctx context.Context, name string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteEntityType", nameInput{Name: name})
}

func (c *Client) PutEventType(ctx context.Context, et *domain.EventType) (*domain.OpResponse, error) {
	return c.op(ctx, "PutEventType", et)
}

func (c *Client) GetEventTypes(ctx context.Context) (*domain.EventTypeList, error) {
	var out domain.EventTypeList
	code, err := c.call(ctx, "GetEventTypes", nil, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) DeleteEventType(ctx context.Context, name string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteEventType", nameInput{Name: name})
}

func (c *Client) CreateVariable(ctx context.Context, v *domain.Variable) (*domain.OpResponse, error) {
	return c.op(ctx, "CreateVariable", v)
}

func (c *Client) GetVariables(ctx context.Context) (*domain.VariableList, error) {
	var out domain.VariableList
	code, err := c.call(ctx, "GetVariables", nil, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) DeleteVariable(ctx context.Context, name string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteVariable", nameInput{Name: name})
}

func (c *Client) PutLabel(ctx context.Context, l *domain.Label) (*domain.OpResponse, error) {
	return c.op(ctx, "PutLabel", l)
}

func (c *Client) GetLabels(ctx context.Context) (*domain.LabelList, error) {
	var out domain.LabelList
	code, err := c.call(ctx, "GetLabels", nil, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) DeleteLabel(ctx context.Context, name string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteLabel", nameInput{Name: name})
}

func (c *Client) CreateModel(ctx context.Context, m *domain.Model) (*domain.OpResponse, error) {
	return c.op(ctx, "CreateModel", m)
}

func (c *Client) GetModels(ctx context.Context) (*domain.ModelList, error) {
	var out domain.ModelList
	code, err := c.call(ctx, "GetModels", nil, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) DeleteModel(ctx context.Context, modelID string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteModel", struct {
		ModelID string `json:"modelId"`
	}{modelID})
}

func (c *Client) CreateModelVersion(ctx context.Context, in *domain.CreateModelVersionInput) (*domain.OpResponse, error) {
	return c.op(ctx, "CreateModelVersion", in)
}

// modelVersionKey identifies one model version on the wire.
type modelVersionKey struct {
	ModelID       string `json:"modelId"`
	ModelType     string `json:"modelType"`
	VersionNumber string `json:"modelVersionNumber"`
	Status        string `json:"status,omitempty"`
}

func (c *Client) GetModelVersion(ctx context.Context, modelID, modelType, version string) (*domain.ModelVersionDetail, error) {
	var out domain.ModelVersionDetail
	code, err := c.call(ctx, "GetModelVersion", modelVersionKey{
		ModelID:       modelID,
		ModelType:     modelType,
		VersionNumber: version,
	}, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) UpdateModelVersionStatus(ctx context.Context, modelID, modelType, version, status string) (*domain.OpResponse, error) {
	return c.op(ctx, "UpdateModelVersionStatus", modelVersionKey{
		ModelID:       modelID,
		ModelType:     modelType,
		VersionNumber: version,
		Status:        status,
	})
}

func (c *Client) PutDetector(ctx context.Context, d *domain.Detector) (*domain.OpResponse, error) {
	return c.op(ctx, "PutDetector", d)
}

func (c *Client) CreateDetectorVersion(ctx context.Context, in *domain.CreateDetectorVersionInput) (*domain.OpResponse, error) {
	return c.op(ctx, "CreateDetectorVersion", in)
}

func (c *Client) DeleteDetectorVersion(ctx context.Context, detectorID, versionID string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteDetectorVersion", struct {
		DetectorID        string `json:"detectorId"`
		DetectorVersionID string `json:"detectorVersionId"`
	}{detectorID, versionID})
}

func (c *Client) GetRules(ctx context.Context, detectorID string) (*domain.RuleList, error) {
	var out domain.RuleList
	code, err := c.call(ctx, "GetRules", struct {
		DetectorID string `json:"detectorId"`
	}{detectorID}, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) CreateRule(ctx context.Context, r *domain.Rule) (*domain.OpResponse, error) {
	return c.op(ctx, "CreateRule", r)
}

func (c *Client) DeleteRule(ctx context.Context, r *domain.RuleRef) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteRule", r)
}

func (c *Client) PutOutcome(ctx context.Context, o *domain.Outcome) (*domain.OpResponse, error) {
	return c.op(ctx, "PutOutcome", o)
}

func (c *Client) GetOutcomes(ctx context.Context) (*domain.OutcomeList, error) {
	var out domain.OutcomeList
	code, err := c.call(ctx, "GetOutcomes", nil, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}

func (c *Client) DeleteOutcome(ctx context.Context, name string) (*domain.OpResponse, error) {
	return c.op(ctx, "DeleteOutcome", nameInput{Name: name})
}

func (c *Client) GetEventPrediction(ctx context.Context, in *domain.PredictionInput) (*domain.PredictionDetail, error) {
	var out domain.PredictionDetail
	code, err := c.call(ctx, "GetEventPrediction", in, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = code
	return &out, nil
}
