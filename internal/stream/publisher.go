package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// DecisionEvent is the message published for every decision change.
type DecisionEvent struct {
	AlertID   string                  `json:"alert_id"`
	ServiceID string                  `json:"service_id"`
	Duplicate bool                    `json:"duplicate,omitempty"`
	RootCause *models.RootCause       `json:"root_cause,omitempty"`
	Decision  models.Decision         `json:"decision"`
	Execution *models.ExecutionResult `json:"execution,omitempty"`
}

// NewDecisionEvent projects an analysis onto its published form.
func NewDecisionEvent(analysis models.Analysis) DecisionEvent {
	ev := DecisionEvent{
		AlertID:   analysis.Alert.ID,
		ServiceID: analysis.Alert.ServiceID,
		Duplicate: analysis.Duplicate,
		Decision:  analysis.Decision,
		Execution: analysis.Execution,
	}
	for i := range analysis.RootCauses {
		if analysis.RootCauses[i].Accepted {
			rc := analysis.RootCauses[i]
			ev.RootCause = &rc
			break
		}
	}
	return ev
}

// DecisionPublisher publishes decisions keyed by service ID so one service's
// decisions stay ordered on a partition.
type DecisionPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewDecisionPublisher connects a publisher to brokers.
func NewDecisionPublisher(brokers []string, topic string, logger *slog.Logger) *DecisionPublisher {
	return newDecisionPublisher(NewWriter(brokers, topic), topic, logger)
}

func newDecisionPublisher(writer messageWriter, topic string, logger *slog.Logger) *DecisionPublisher {
	return &DecisionPublisher{writer: writer, topic: topic, logger: utils.OrDefault(logger)}
}

// PublishAnalysis implements the decision sink contract.
func (p *DecisionPublisher) PublishAnalysis(ctx context.Context, analysis models.Analysis) error {
	if err := PublishJSON(ctx, p.writer, analysis.Alert.ServiceID, NewDecisionEvent(analysis)); err != nil {
		return fmt.Errorf("publish decision to %s: %w", p.topic, err)
	}
	p.logger.Debug("decision published", "topic", p.topic, "alert_id", analysis.Alert.ID, "decision_id", analysis.Decision.ID)
	return nil
}

// Close flushes and closes the writer.
func (p *DecisionPublisher) Close() error {
	return p.writer.Close()
}
