package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// RuleSource lists a tenant's enabled rules, newest first.
type RuleSource interface {
	ListEnabled(ctx context.Context, userID string) ([]Rule, error)
}

const defaultDispatchTimeout = 10 * time.Second

// Engine evaluates rules against AI responses and posts matching payloads.
type Engine struct {
	source  RuleSource
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine builds a fanout engine. A zero timeout falls back to 10s per
// delivery.
func NewEngine(log *slog.Logger, source RuleSource, timeout time.Duration) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Engine{
		source:  source,
		client:  &http.Client{},
		timeout: timeout,
		logger:  log.With(slog.String("service", "webhook")),
	}
}

// ResolveRules returns the tenant's enabled rules whose service scope is
// empty or equals serviceID and whose project scope is empty or equals
// projectKey. Order is newest first; callers must not rely on it for
// mutually exclusive filters.
func (e *Engine) ResolveRules(ctx context.Context, userID, serviceID, projectKey string) ([]Rule, error) {
	rules, err := e.source.ListEnabled(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list webhook rules: %w", err)
	}

	matched := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.ServiceID != "" && rule.ServiceID != serviceID {
			continue
		}
		if rule.ProjectKey != "" && rule.ProjectKey != projectKey {
			continue
		}
		matched = append(matched, rule)
	}
	return matched, nil
}

// Matches reports whether the rule's content filter accepts the AI response.
// The response may be a JSON-encoded string or an already-decoded value.
// Unparsable responses never match a filtered rule.
func (e *Engine) Matches(rule Rule, aiResponse any) bool {
	if !rule.FilterEnabled {
		return true
	}
	if rule.FilterCondition != ConditionValueEquals {
		e.logger.Warn("unknown filter condition",
			slog.String("rule_id", rule.ID),
			slog.String("condition", rule.FilterCondition))
		return false
	}

	value, ok := responseValue(aiResponse)
	if !ok {
		e.logger.Warn("unparsable ai response for filter",
			slog.String("rule_id", rule.ID))
		return false
	}
	return value == rule.FilterValue
}

// Dispatch resolves the tenant's rules for the given context, evaluates each
// rule's filter against aiResponse, and posts payload to every match
// concurrently. Each delivery settles independently within its own timeout;
// a hung or failing target never delays a sibling. The returned outcomes
// cover every resolved rule, including skipped ones.
func (e *Engine) Dispatch(ctx context.Context, userID, serviceID, projectKey string, aiResponse any, payload any) ([]Outcome, error) {
	rules, err := e.ResolveRules(ctx, userID, serviceID, projectKey)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	outcomes := make([]Outcome, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		if !e.Matches(rule, aiResponse) {
			outcomes[i] = Outcome{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				URL:      rule.URL,
				Status:   StatusSkipped,
			}
			continue
		}

		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			outcomes[i] = e.deliver(ctx, rule, body)
		}(i, rule)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.Status == StatusFailed {
			e.logger.Warn("webhook delivery failed",
				slog.String("rule_id", outcome.RuleID),
				slog.String("url", outcome.URL),
				slog.Int("http_code", outcome.HTTPCode),
				slog.String("error", outcome.Error))
		}
	}
	return outcomes, nil
}

func (e *Engine) deliver(ctx context.Context, rule Rule, body []byte) Outcome {
	outcome := Outcome{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		URL:      rule.URL,
	}

	deliverCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	req, err := http.NewRequestWithContext(deliverCtx, http.MethodPost, rule.URL, bytes.NewReader(body))
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		outcome.Duration = time.Since(started)
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Deskbridge-Rule-ID", rule.ID)
	req.Header.Set("X-Deskbridge-Rule-Name", rule.Name)

	resp, err := e.client.Do(req)
	outcome.Duration = time.Since(started)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	outcome.HTTPCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Status = StatusDelivered
	} else {
		outcome.Status = StatusFailed
		outcome.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return outcome
}

// responseValue extracts the structured "value" field from an AI response.
func responseValue(aiResponse any) (string, bool) {
	switch v := aiResponse.(type) {
	case nil:
		return "", false
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return "", false
		}
		return stringField(decoded, "value")
	case []byte:
		var decoded map[string]any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return "", false
		}
		return stringField(decoded, "value")
	case map[string]any:
		return stringField(v, "value")
	default:
		return "", false
	}
}

func stringField(m map[string]any, key string) (string, bool) {
	value, ok := m[key].(string)
	return value, ok
}
