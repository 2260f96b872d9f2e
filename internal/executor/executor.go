package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// DryRun logs the action and reports success without touching anything.
type DryRun struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDryRun builds a dry-run executor.
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: utils.OrDefault(logger), now: time.Now}
}

// Execute implements the executor contract.
func (d *DryRun) Execute(ctx context.Context, decision models.Decision, action models.Action) (models.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ExecutionResult{}, err
	}
	d.logger.Info("dry-run execution",
		"decision_id", decision.ID,
		"alert_id", decision.AlertID,
		"action", action.Kind,
		"target", action.TargetServiceID,
		"risk", action.RiskLevel,
	)
	return models.ExecutionResult{Succeeded: true, ExecutedAt: d.now().UTC(), Message: "dry run"}, nil
}

// Webhook hands actions to an orchestrator over HTTP.
type Webhook struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewWebhook targets url; token, when set, is sent as a bearer credential.
func NewWebhook(url, token string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:        strings.TrimSpace(url),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.OrDefault(logger),
		now:        time.Now,
	}
}

type executeRequest struct {
	DecisionID         string          `json:"decision_id"`
	AlertID            string          `json:"alert_id"`
	ServiceID          string          `json:"service_id"`
	RootCauseSignature string          `json:"root_cause_signature"`
	Confidence         float64         `json:"confidence"`
	Autonomy           models.Autonomy `json:"autonomy"`
	Action             models.Action   `json:"action"`
}

type executeResponse struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message"`
}

// Execute posts the action and reports the orchestrator's verdict. Transport
// failures and non-2xx responses are errors; a 2xx body reporting failure is
// a failed result.
func (w *Webhook) Execute(ctx context.Context, decision models.Decision, action models.Action) (models.ExecutionResult, error) {
	if w.url == "" {
		return models.ExecutionResult{}, fmt.Errorf("executor webhook URL not configured")
	}
	payload := executeRequest{
		DecisionID:         decision.ID,
		AlertID:            decision.AlertID,
		ServiceID:          decision.ServiceID,
		RootCauseSignature: decision.RootCauseSignature,
		Confidence:         decision.Confidence,
		Autonomy:           decision.Autonomy,
		Action:             action,
	}

	var resp executeResponse
	if err := w.postJSON(ctx, payload, &resp); err != nil {
		return models.ExecutionResult{}, err
	}
	w.logger.Info("action executed",
		"decision_id", decision.ID,
		"action", action.Kind,
		"succeeded", resp.Succeeded,
	)
	return models.ExecutionResult{Succeeded: resp.Succeeded, ExecutedAt: w.now().UTC(), Message: resp.Message}, nil
}

func (w *Webhook) postJSON(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("orchestrator returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	if resp.StatusCode == http.StatusNoContent {
		if r, ok := out.(*executeResponse); ok {
			r.Succeeded = true
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
