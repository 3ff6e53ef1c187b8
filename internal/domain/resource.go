// Package domain defines the core resource descriptors and component
// interfaces for Peregrine, a thin orchestration layer over a managed
// fraud-detection service.
package domain

// ResourceKind tags the six remote resource kinds the provisioner
// manages, plus the outcome kind used by detector rules.
type ResourceKind string

const (
	KindEntityType ResourceKind = "entity_type"
	KindEventType  ResourceKind = "event_type"
	KindVariable   ResourceKind = "variable"
	KindLabel      ResourceKind = "label"
	KindModel      ResourceKind = "model"
	KindDetector   ResourceKind = "detector"
	KindRule       ResourceKind = "rule"
	KindOutcome    ResourceKind = "outcome"
)

// EntityType describes the actor performing an event.
type EntityType struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// EventType describes the schema of a single observable event.
type EventType struct {
	Name           string   `json:"name"`
	EventVariables []string `json:"eventVariables"`
	Labels         []string `json:"labels"`
	EntityTypes    []string `json:"entityTypes"`
}

// Variable data types.
const (
	DataTypeString = "STRING"
	DataTypeFloat  = "FLOAT"
)

// Variable is a named field on an event.
type Variable struct {
	Name         string `json:"name"`
	VariableType string `json:"variableType"`
	DataType     string `json:"dataType"`
	DefaultValue string `json:"defaultValue"`
	Description  string `json:"description,omitempty"`
}

// Label is a target classification value for training.
type Label struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Model types supported by the remote service.
const (
	ModelTypeOnlineFraudInsights      = "ONLINE_FRAUD_INSIGHTS"
	ModelTypeTransactionFraudInsights = "TRANSACTION_FRAUD_INSIGHTS"
)

// Model describes a fraud model bound to an event type.
type Model struct {
	ModelID       string `json:"modelId"`
	ModelType     string `json:"modelType"`
	EventTypeName string `json:"eventTypeName"`
	Description   string `json:"description,omitempty"`
}

// Model version lifecycle statuses, as reported by the remote service.
const (
	ModelStatusUntrained        = "UNTRAINED"
	ModelStatusTraining         = "TRAINING_IN_PROGRESS"
	ModelStatusTrainingComplete = "TRAINING_COMPLETE"
	ModelStatusActive           = "ACTIVE"
	ModelStatusInactive         = "INACTIVE"
)

// ModelVersion identifies one trained instance of a model.
type ModelVersion struct {
	ModelID       string `json:"modelId"`
	ModelType     string `json:"modelType"`
	VersionNumber string `json:"modelVersionNumber"`
	Status        string `json:"status,omitempty"`
}

// Detector is a deployed decision unit combining a model version with
// a rule set and an execution mode.
type Detector struct {
	DetectorID    string `json:"detectorId"`
	EventTypeName string `json:"eventTypeName"`
	Description   string `json:"description,omitempty"`
}

// RuleLanguage is the remote service's rule expression language.
const RuleLanguage = "DETECTORPL"

// Rule execution modes for a detector version.
const (
	RuleExecutionFirstMatched = "FIRST_MATCHED"
	RuleExecutionAllMatched   = "ALL_MATCHED"
)

// Rule is a boolean expression over model scores and event variables
// mapping to one or more outcomes.
type Rule struct {
	RuleID      string   `json:"ruleId"`
	DetectorID  string   `json:"detectorId"`
	RuleVersion string   `json:"ruleVersion,omitempty"`
	Expression  string   `json:"expression"`
	Outcomes    []string `json:"outcomes"`
	Language    string   `json:"language"`
}

// Outcome is a named terminal decision a rule can produce.
type Outcome struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Label mapper keys in the training data schema.
const (
	LabelMapperFraud = "FRAUD"
	LabelMapperLegit = "LEGIT"
)

// TrainingDataSchema is the schema the remote service trains against.
type TrainingDataSchema struct {
	ModelVariables []string `json:"modelVariables"`
	LabelSchema    struct {
		LabelMapper map[string][]string `json:"labelMapper"`
	} `json:"labelSchema"`
}

// RuleMatch is one rule outcome from a prediction.
type RuleMatch struct {
	RuleID   string   `json:"ruleId"`
	Outcomes []string `json:"outcomes"`
}

// Prediction is the merged result of one scoring call: model score
// fields plus rule-evaluation results.
type Prediction struct {
	EventID     string             `json:"eventId"`
	Scores      map[string]float64 `json:"scores"`
	RuleResults []RuleMatch        `json:"ruleResults"`
}
