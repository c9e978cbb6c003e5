package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/model"
	"github.com/fjglira/qagen/internal/recovery"
	"github.com/fjglira/qagen/internal/retry"
)

// InvokeModel calls the model with bounded retries. An empty response counts
// as a failure. Exhausted retries yield domain.ErrGenerationFailed;
// cancellation is returned as is.
func (o *Orchestrator) InvokeModel(ctx context.Context, req model.Request) (string, error) {
	var text string
	cfg := retry.Config{
		MaxAttempts:      o.modelCfg.Attempts,
		BaseDelay:        o.modelCfg.RetryDelay,
		MaxJitterPercent: retry.DefaultMaxJitterPercent,
		Log:              o.log,
		Sleep:            o.sleep,
		OnRetry: func(delay time.Duration, attempt, max int) {
			o.log.Infof("Model call failed, retrying in %s (attempt %d/%d)", delay.Round(time.Millisecond), attempt, max)
		},
	}

	err := retry.Execute(ctx, cfg, func(ctx context.Context) error {
		out, err := o.model.Generate(ctx, req)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return model.ErrEmptyResponse
		}
		text = out
		return nil
	})
	if err != nil {
		if domain.IsCancellation(ctx, err) {
			return "", err
		}
		return "", domain.NewError("model", o.modelCfg.Name,
			fmt.Sprintf("no usable response after %d attempts", max(cfg.MaxAttempts, 1)),
			errors.Join(domain.ErrGenerationFailed, err))
	}
	return text, nil
}

// Parse turns a raw model response into normalized records. Strict parsing is
// tried first, then recovery; both paths go through the same converter.
func (o *Orchestrator) Parse(text string) domain.PhaseResult {
	res, ok := recovery.ParseDirect(text)
	if !ok {
		res = recovery.Recover(text)
		o.log.WithField("recovered", len(res.Records)).Debug("Response was not valid JSON, used recovery")
	}
	return domain.PhaseResult{
		Records:   o.conv.Convert(res.Records),
		Questions: res.Questions,
		Summary:   res.Summary,
		HasMore:   res.HasMore,
	}
}
