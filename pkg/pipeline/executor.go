package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/zen-systems/scribegate/pkg/adapter"
	"github.com/zen-systems/scribegate/pkg/config"
	"github.com/zen-systems/scribegate/pkg/render"
	"github.com/zen-systems/scribegate/pkg/repair"
	"github.com/zen-systems/scribegate/pkg/template"
	"github.com/zen-systems/scribegate/pkg/validate"
)

// ContractError aggregates the contract violations of one attempt. It is
// retryable: the model produced output, just not conforming output.
type ContractError struct {
	Errors []*validate.Error
}

func (e *ContractError) Error() string {
	kinds := make([]string, 0, len(e.Errors))
	for _, v := range e.Errors {
		kinds = append(kinds, string(v.Kind))
	}
	return fmt.Sprintf("response violated contract: %s", strings.Join(kinds, ", "))
}

// Executor runs a single stage: render, invoke the model client, validate,
// and retry with exponential backoff plus jitter. Transient client
// failures and contract violations are retried up to the configured
// attempt budget; configuration errors (unknown template, unbound
// required variable) fail immediately.
type Executor struct {
	Catalog *template.Catalog
	Client  adapter.Client
	Call    adapter.Options
	Policy  config.RunnerConfig
	Logger  *slog.Logger
}

// Run executes one stage to a terminal status. The returned result always
// records the attempt count; on exhaustion it keeps the last parse so the
// caller can see what the model produced.
func (e *Executor) Run(ctx context.Context, stage *Stage, bindings map[string]string) *StageResult {
	start := time.Now()
	log := e.logger().With("stage", stage.ID, "template", stage.Template)
	result := &StageResult{StageID: stage.ID}

	finish := func(status Status, err error) *StageResult {
		result.Status = status
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	tmpl, err := e.Catalog.Get(stage.Template)
	if err != nil {
		return finish(StatusFailed, err)
	}
	base, err := render.Render(tmpl, bindings)
	if err != nil {
		return finish(StatusFailed, err)
	}

	if e.Policy.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Policy.StageTimeout)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.Policy.InitialBackoff
	bo.MaxInterval = e.Policy.MaxBackoff

	prompt := base
	var last *validate.ParsedResult
	var permanent error

	parsed, err := backoff.Retry(ctx, func() (*validate.ParsedResult, error) {
		result.Attempts++
		raw, err := e.Client.Complete(ctx, prompt, e.Call)
		if err != nil {
			if adapter.IsTransient(err) {
				log.Warn("transient client failure, retrying", "attempt", result.Attempts, "error", err)
				var clientErr *adapter.ClientError
				if errors.As(err, &clientErr) && clientErr.RetryAfter > 0 {
					return nil, &backoff.RetryAfterError{Duration: clientErr.RetryAfter}
				}
				return nil, err
			}
			permanent = err
			return nil, backoff.Permanent(err)
		}

		attempt := validate.Parse(raw, tmpl)
		last = attempt
		if !attempt.Valid() {
			log.Warn("response violated contract, regenerating",
				"attempt", result.Attempts, "violations", len(attempt.Errors))
			prompt = repair.GenerateRepairPrompt(base, raw, attempt.Errors)
			return nil, &ContractError{Errors: attempt.Errors}
		}
		return attempt, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(e.Policy.MaxAttempts)))

	if err != nil {
		result.Result = last
		switch {
		case permanent != nil:
			return finish(StatusFailed, err)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return finish(StatusFailed, err)
		default:
			return finish(StatusRetryExhausted,
				fmt.Errorf("stage %s: retry budget of %d exhausted: %w", stage.ID, e.Policy.MaxAttempts, err))
		}
	}

	result.Result = parsed
	log.Debug("stage succeeded", "attempts", result.Attempts, "duration", time.Since(start))
	return finish(StatusSucceeded, nil)
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
