package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/profiler"
)

var (
	// ErrTrainingNotComplete is returned when activation is attempted
	// before training has finished.
	ErrTrainingNotComplete = errors.New("model training is not complete")

	// ErrModelNotActive is returned when deployment is attempted
	// before the model version is active.
	ErrModelNotActive = errors.New("model version is not active")
)

// modelVersion returns the configured model version, normalized to the
// major.minor form the remote service expects.
func (p *Provisioner) modelVersion() string {
	v := p.project.ModelVersion
	if !strings.Contains(v, ".") {
		v += ".00"
	}
	return v
}

// StartTraining creates a model version against the training data,
// which starts a remote training run.
func (p *Provisioner) StartTraining(ctx context.Context, schema domain.TrainingDataSchema, external *domain.ExternalEvents) (domain.StatusMap, error) {
	in := &domain.CreateModelVersionInput{
		ModelID:            p.project.ModelName,
		ModelType:          p.project.ModelType,
		TrainingDataSource: "EXTERNAL_EVENTS",
		TrainingDataSchema: schema,
		ExternalEvents:     external,
	}

	resp, err := p.client.CreateModelVersion(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create model version: %w", err)
	}

	status := domain.StatusOf(resp.HTTPStatus)
	p.record(ctx, domain.KindModel, p.project.ModelName+"/"+p.modelVersion(), domain.ActionCreate, status)

	payload := fmt.Sprintf(`{"model":%q,"version":%q}`, p.project.ModelName, p.modelVersion())
	if err := p.bus.Publish(ctx, p.project.Name, domain.TopicTrainingStarted, []byte(payload)); err != nil {
		p.logger.Warn("failed to publish training event", "error", err)
	}

	p.logger.Info("training started",
		"model", p.project.ModelName,
		"version", p.modelVersion())
	return domain.StatusMap{p.project.ModelName: status}, nil
}

// ModelStatus returns the current status of the configured model
// version.
func (p *Provisioner) ModelStatus(ctx context.Context) (string, error) {
	detail, err := p.client.GetModelVersion(ctx, p.project.ModelName, p.project.ModelType, p.modelVersion())
	if err != nil {
		return "", fmt.Errorf("get model version: %w", err)
	}
	return detail.Status, nil
}

// WaitForTraining polls the model version status until it leaves
// TRAINING_IN_PROGRESS, then returns the final status. The wait is
// bounded only by the caller's context.
func (p *Provisioner) WaitForTraining(ctx context.Context) (string, error) {
	for {
		status, err := p.ModelStatus(ctx)
		if err != nil {
			return "", err
		}
		if status != domain.ModelStatusTraining {
			payload := fmt.Sprintf(`{"model":%q,"version":%q,"status":%q}`, p.project.ModelName, p.modelVersion(), status)
			if err := p.bus.Publish(ctx, p.project.Name, domain.TopicTrainingFinished, []byte(payload)); err != nil {
				p.logger.Warn("failed to publish training event", "error", err)
			}
			p.logger.Info("training finished", "model", p.project.ModelName, "status", status)
			return status, nil
		}

		p.logger.Info("training in progress, waiting",
			"model", p.project.ModelName,
			"poll_interval", p.pollInterval)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

// Fit runs the full training workflow from profiling inputs: project
// setup, then a training run against the external data. With wait set
// it blocks until training finishes and returns the final model
// status, otherwise it returns immediately with the in-progress
// status.
func (p *Provisioner) Fit(ctx context.Context, inputs *profiler.Inputs, external *domain.ExternalEvents, wait bool) (string, error) {
	if _, err := p.SetupProject(ctx, inputs); err != nil {
		return "", err
	}
	if _, err := p.StartTraining(ctx, inputs.Schema, external); err != nil {
		return "", err
	}
	if !wait {
		return domain.ModelStatusTraining, nil
	}
	return p.WaitForTraining(ctx)
}

// Activate binds the trained model to a detector: it puts the
// detector, creates any outcomes the caller wants available, and
// promotes the model version to ACTIVE. Only permitted once training
// is complete; re-activating an ACTIVE version is allowed and re-puts
// the detector.
func (p *Provisioner) Activate(ctx context.Context, outcomes []domain.Outcome) error {
	status, err := p.ModelStatus(ctx)
	if err != nil {
		return err
	}

	switch status {
	case domain.ModelStatusTrainingComplete, domain.ModelStatusActive:
		// Proceed
	default:
		return fmt.Errorf("%w: status is %s", ErrTrainingNotComplete, status)
	}

	detector := &domain.Detector{
		DetectorID:    p.project.DetectorName,
		EventTypeName: p.project.EventType,
	}
	resp, err := p.client.PutDetector(ctx, detector)
	if err != nil {
		return fmt.Errorf("put detector: %w", err)
	}
	p.record(ctx, domain.KindDetector, detector.DetectorID, domain.ActionCreate, domain.StatusOf(resp.HTTPStatus))

	// No outcomes means the model is being activated against outcomes
	// that already exist.
	if len(outcomes) > 0 {
		if _, err := p.CreateOutcomes(ctx, outcomes); err != nil {
			return err
		}
	}

	resp, err = p.client.UpdateModelVersionStatus(ctx, p.project.ModelName, p.project.ModelType, p.modelVersion(), domain.ModelStatusActive)
	if err != nil {
		return fmt.Errorf("activate model version: %w", err)
	}

	p.record(ctx, domain.KindModel, p.project.ModelName+"/"+p.modelVersion(), "activate", domain.StatusOf(resp.HTTPStatus))
	p.logger.Info("model version activated", "model", p.project.ModelName, "version", p.modelVersion())
	return nil
}

// Deactivate demotes the model version to INACTIVE.
func (p *Provisioner) Deactivate(ctx context.Context) error {
	resp, err := p.client.UpdateModelVersionStatus(ctx, p.project.ModelName, p.project.ModelType, p.modelVersion(), domain.ModelStatusInactive)
	if err != nil {
		return fmt.Errorf("deactivate model version: %w", err)
	}

	p.record(ctx, domain.KindModel, p.project.ModelName+"/"+p.modelVersion(), "deactivate", domain.StatusOf(resp.HTTPStatus))
	p.logger.Info("model version deactivated", "model", p.project.ModelName, "version", p.modelVersion())
	return nil
}

// Deploy creates the detector, its outcomes and rules, and a detector
// version binding them to the active model. Only permitted once the
// model version is ACTIVE. The execution mode defaults to
// FIRST_MATCHED.
func (p *Provisioner) Deploy(ctx context.Context, ruleDefs []domain.Rule, executionMode string) (domain.StatusMap, error) {
	status, err := p.ModelStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status != domain.ModelStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrModelNotActive, status)
	}

	if executionMode == "" {
		executionMode = domain.RuleExecutionFirstMatched
	}

	statuses := make(domain.StatusMap)

	detector := &domain.Detector{
		DetectorID:    p.project.DetectorName,
		EventTypeName: p.project.EventType,
	}
	resp, err := p.client.PutDetector(ctx, detector)
	if err != nil {
		return statuses, fmt.Errorf("put detector: %w", err)
	}
	statuses[detector.DetectorID] = domain.StatusOf(resp.HTTPStatus)
	p.record(ctx, domain.KindDetector, detector.DetectorID, domain.ActionCreate, statuses[detector.DetectorID])

	// Every outcome referenced by a rule must exist first.
	var outcomes []domain.Outcome
	seen := make(map[string]struct{})
	for _, r := range ruleDefs {
		for _, name := range r.Outcomes {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			outcomes = append(outcomes, domain.Outcome{Name: name})
		}
	}
	outcomeStatuses, err := p.CreateOutcomes(ctx, outcomes)
	if err != nil {
		return statuses, err
	}
	for k, v := range outcomeStatuses {
		statuses[k] = v
	}

	ruleStatuses, err := p.CreateRules(ctx, ruleDefs)
	if err != nil {
		return statuses, err
	}
	for k, v := range ruleStatuses {
		statuses[k] = v
	}

	refs := make([]domain.RuleRef, 0, len(ruleDefs))
	for _, r := range ruleDefs {
		version := r.RuleVersion
		if version == "" {
			version = "1"
		}
		refs = append(refs, domain.RuleRef{
			RuleID:      r.RuleID,
			DetectorID:  p.project.DetectorName,
			RuleVersion: version,
		})
	}

	in := &domain.CreateDetectorVersionInput{
		DetectorID: p.project.DetectorName,
		Rules:      refs,
		ModelVersions: []domain.ModelVersionRef{{
			ModelID:       p.project.ModelName,
			ModelType:     p.project.ModelType,
			VersionNumber: p.modelVersion(),
		}},
		RuleExecutionMode: executionMode,
	}
	resp, err = p.client.CreateDetectorVersion(ctx, in)
	if err != nil {
		return statuses, fmt.Errorf("create detector version: %w", err)
	}
	statuses[p.project.DetectorName+"/version"] = domain.StatusOf(resp.HTTPStatus)
	p.record(ctx, domain.KindDetector, p.project.DetectorName+"/version", domain.ActionCreate, statuses[p.project.DetectorName+"/version"])

	p.logger.Info("detector deployed",
		"detector", p.project.DetectorName,
		"rules", len(ruleDefs),
		"execution_mode", executionMode)
	return statuses, nil
}

// Teardown deletes the detector version. Other resources are deleted
// individually; the remote service enforces its own dependency order.
func (p *Provisioner) Teardown(ctx context.Context) (domain.StatusMap, error) {
	resp, err := p.client.DeleteDetectorVersion(ctx, p.project.DetectorName, p.project.DetectorVersion)
	if err != nil {
		return nil, fmt.Errorf("delete detector version: %w", err)
	}

	status := domain.StatusOf(resp.HTTPStatus)
	p.record(ctx, domain.KindDetector, p.project.DetectorName+"/version", domain.ActionDelete, status)
	return domain.StatusMap{p.project.DetectorName: status}, nil
}
