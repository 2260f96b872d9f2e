package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// OutcomeRecorder accepts outcome reports.
type OutcomeRecorder interface {
	SubmitFeedback(ctx context.Context, outcome models.Outcome) error
}

// FeedbackConsumer feeds outcome reports from a topic into the recorder.
// Messages are committed once recorded or found invalid. While the store is
// unavailable the same message is retried with backoff and stays uncommitted,
// so a restart redelivers it.
type FeedbackConsumer struct {
	reader     messageReader
	recorder   OutcomeRecorder
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewFeedbackConsumer joins groupID on topic.
func NewFeedbackConsumer(brokers []string, topic, groupID string, recorder OutcomeRecorder, logger *slog.Logger) *FeedbackConsumer {
	return newFeedbackConsumer(NewReader(brokers, topic, groupID), recorder, logger)
}

func newFeedbackConsumer(reader messageReader, recorder OutcomeRecorder, logger *slog.Logger) *FeedbackConsumer {
	return &FeedbackConsumer{
		reader:     reader,
		recorder:   recorder,
		logger:     utils.OrDefault(logger),
		backoff:    500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *FeedbackConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("feedback consumer stopping")
				return nil
			}
			c.logger.Warn("feedback read failed", "error", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		outcome, err := ParseMessageJSON[models.Outcome](msg)
		if err != nil {
			c.logger.Warn("feedback decode failed", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		} else if !c.record(ctx, outcome) {
			c.logger.Info("feedback consumer stopping with outcome uncommitted", "offset", msg.Offset, "partition", msg.Partition)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("feedback commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// record reports whether the message may be committed: the outcome was
// stored or rejected as invalid. It returns false only when ctx ends first.
func (c *FeedbackConsumer) record(ctx context.Context, outcome models.Outcome) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.recorder.SubmitFeedback(ctx, outcome)
		if err == nil {
			return true
		}
		if !errors.Is(err, utils.ErrDataUnavailable) {
			c.logger.Warn("feedback rejected",
				"signature", outcome.RootCauseSignature,
				"action", outcome.ActionKind,
				"decision_id", outcome.DecisionID,
				"error", err,
			)
			return true
		}
		c.logger.Warn("knowledge store unavailable, retrying feedback",
			"decision_id", outcome.DecisionID,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return false
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

// Close leaves the consumer group.
func (c *FeedbackConsumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
