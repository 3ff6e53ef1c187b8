package domain

import (
	"context"
	"strconv"
)

// OpResponse carries the HTTP status the remote service returned for
// an operation. Embedded by every response type.
type OpResponse struct {
	HTTPStatus int `json:"-"`
}

// EntityTypeList is the response to GetEntityTypes.
type EntityTypeList struct {
	OpResponse
	EntityTypes []EntityType `json:"entityTypes"`
}

// EventTypeList is the response to GetEventTypes.
type EventTypeList struct {
	OpResponse
	EventTypes []EventType `json:"eventTypes"`
}

// VariableList is the response to GetVariables.
type VariableList struct {
	OpResponse
	Variables []Variable `json:"variables"`
}

// LabelList is the response to GetLabels.
type LabelList struct {
	OpResponse
	Labels []Label `json:"labels"`
}

// ModelList is the response to GetModels.
type ModelList struct {
	OpResponse
	Models []Model `json:"models"`
}

// RuleList is the response to GetRules for one detector.
type RuleList struct {
	OpResponse
	RuleDetails []Rule `json:"ruleDetails"`
}

// OutcomeList is the response to GetOutcomes.
type OutcomeList struct {
	OpResponse
	Outcomes []Outcome `json:"outcomes"`
}

// ModelVersionDetail is the response to GetModelVersion.
type ModelVersionDetail struct {
	OpResponse
	ModelID       string `json:"modelId"`
	ModelType     string `json:"modelType"`
	VersionNumber string `json:"modelVersionNumber"`
	Status        string `json:"status"`
}

// ExternalEvents points the trainer at the training data location.
type ExternalEvents struct {
	DataLocation      string `json:"dataLocation"`
	DataAccessRoleARN string `json:"dataAccessRoleArn"`
}

// CreateModelVersionInput starts a training run.
type CreateModelVersionInput struct {
	ModelID            string             `json:"modelId"`
	ModelType          string             `json:"modelType"`
	TrainingDataSource string             `json:"trainingDataSource"`
	TrainingDataSchema TrainingDataSchema `json:"trainingDataSchema"`
	ExternalEvents     *ExternalEvents    `json:"externalEventsDetail,omitempty"`
}

// ModelVersionRef attaches a trained model version to a detector
// version.
type ModelVersionRef struct {
	ModelID       string `json:"modelId"`
	ModelType     string `json:"modelType"`
	VersionNumber string `json:"modelVersionNumber"`
}

// RuleRef names a rule version inside a detector version.
type RuleRef struct {
	RuleID      string `json:"ruleId"`
	DetectorID  string `json:"detectorId"`
	RuleVersion string `json:"ruleVersion"`
}

// CreateDetectorVersionInput deploys a detector version.
type CreateDetectorVersionInput struct {
	DetectorID        string            `json:"detectorId"`
	Rules             []RuleRef         `json:"rules"`
	ModelVersions     []ModelVersionRef `json:"modelVersions"`
	RuleExecutionMode string            `json:"ruleExecutionMode"`
}

// PredictedEntity identifies the actor in a prediction call.
type PredictedEntity struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// PredictionInput is one scoring request.
type PredictionInput struct {
	DetectorID        string            `json:"detectorId"`
	DetectorVersionID string            `json:"detectorVersionId"`
	EventID           string            `json:"eventId"`
	EventTypeName     string            `json:"eventTypeName"`
	EventTimestamp    string            `json:"eventTimestamp"`
	Entities          []PredictedEntity `json:"entities"`
	EventVariables    map[string]string `json:"eventVariables"`
}

// ModelScore is one model version's score block in a prediction
// response.
type ModelScore struct {
	ModelVersion ModelVersionRef    `json:"modelVersion"`
	Scores       map[string]float64 `json:"scores"`
}

// PredictionDetail is the response to GetEventPrediction.
type PredictionDetail struct {
	OpResponse
	ModelScores []ModelScore `json:"modelScores"`
	RuleResults []RuleMatch  `json:"ruleResults"`
}

// DetectorAPI is the remote fraud-detection service client. Every
// method issues exactly one remote call; failures propagate as errors
// with no retries.
type DetectorAPI interface {
	// Entity types
	PutEntityType(ctx context.Context, et *EntityType) (*OpResponse, error)
	GetEntityTypes(ctx context.Context) (*EntityTypeList, error)
	DeleteEntityType(ctx context.Context, name string) (*OpResponse, error)

	// Event types
	PutEventType(ctx context.Context, et *EventType) (*OpResponse, error)
	GetEventTypes(ctx context.Context) (*EventTypeList, error)
	DeleteEventType(ctx context.Context, name string) (*OpResponse, error)

	// Variables
	CreateVariable(ctx context.Context, v *Variable) (*OpResponse, error)
	GetVariables(ctx context.Context) (*VariableList, error)
	DeleteVariable(ctx context.Context, name string) (*OpResponse, error)

	// Labels
	PutLabel(ctx context.Context, l *Label) (*OpResponse, error)
	GetLabels(ctx context.Context) (*LabelList, error)
	DeleteLabel(ctx context.Context, name string) (*OpResponse, error)

	// Models and model versions
	CreateModel(ctx context.Context, m *Model) (*OpResponse, error)
	GetModels(ctx context.Context) (*ModelList, error)
	DeleteModel(ctx context.Context, modelID string) (*OpResponse, error)
	CreateModelVersion(ctx context.Context, in *CreateModelVersionInput) (*OpResponse, error)
	GetModelVersion(ctx context.Context, modelID, modelType, version string) (*ModelVersionDetail, error)
	UpdateModelVersionStatus(ctx context.Context, modelID, modelType, version, status string) (*OpResponse, error)

	// Detectors, rules, outcomes
	PutDetector(ctx context.Context, d *Detector) (*OpResponse, error)
	CreateDetectorVersion(ctx context.Context, in *CreateDetectorVersionInput) (*OpResponse, error)
	DeleteDetectorVersion(ctx context.Context, detectorID, versionID string) (*OpResponse, error)
	GetRules(ctx context.Context, detectorID string) (*RuleList, error)
	CreateRule(ctx context.Context, r *Rule) (*OpResponse, error)
	DeleteRule(ctx context.Context, r *RuleRef) (*OpResponse, error)
	PutOutcome(ctx context.Context, o *Outcome) (*OpResponse, error)
	GetOutcomes(ctx context.Context) (*OutcomeList, error)
	DeleteOutcome(ctx context.Context, name string) (*OpResponse, error)

	// Predictions
	GetEventPrediction(ctx context.Context, in *PredictionInput) (*PredictionDetail, error)
}

// IdentityAPI is the auxiliary identity/object-store check client.
type IdentityAPI interface {
	// CheckIdentity verifies the configured credentials can reach the
	// data location. Returns the caller identity string.
	CheckIdentity(ctx context.Context) (string, error)
}

// OpStatus records how a provisioning call resolved: skipped because
// the resource already existed, or the HTTP status the remote call
// returned.
type OpStatus struct {
	Code    int  `json:"code,omitempty"`
	Skipped bool `json:"skipped"`
}

// Skipped marks an operation that was not issued because the target
// name already existed.
var Skipped = OpStatus{Skipped: true}

// StatusOf wraps an HTTP status code.
func StatusOf(code int) OpStatus {
	return OpStatus{Code: code}
}

func (s OpStatus) String() string {
	if s.Skipped {
		return "skipped"
	}
	return strconv.Itoa(s.Code)
}

// StatusMap maps resource names to the status their provisioning call
// resolved with.
type StatusMap = map[string]OpStatus
