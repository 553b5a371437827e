package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/metrics"
)

const (
	eventReplayJobName    = "event-replay"
	defaultReplayBatch    = 100
	defaultReplayLookback = 72 * time.Hour
	defaultReplayAttempts = 10
)

type replayCandidateLister interface {
	ListReplayCandidates(ctx context.Context, params billing.ReplayCandidatesQuery) ([]models.EventReconciliation, error)
}

type eventRetrier interface {
	Retry(ctx context.Context, prior models.EventReconciliation) (*razorpaywebhook.Receipt, error)
}

type EventReplayJobParams struct {
	Logger      *logger.Logger
	Repo        replayCandidateLister
	Retrier     eventRetrier
	Metrics     *metrics.CronJobMetrics
	BatchSize   int
	Lookback    time.Duration
	MaxAttempts int
	Now         func() time.Time
}

// NewEventReplayJob retries events whose reconciliation was degraded:
// status-only activations and events that arrived before their subscription.
func NewEventReplayJob(params EventReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repo == nil {
		return nil, errors.New("billing repository required")
	}
	if params.Retrier == nil {
		return nil, errors.New("event retrier required")
	}
	job := &eventReplayJob{
		logg:        params.Logger,
		repo:        params.Repo,
		retrier:     params.Retrier,
		metrics:     params.Metrics,
		batch:       params.BatchSize,
		lookback:    params.Lookback,
		maxAttempts: params.MaxAttempts,
		now:         params.Now,
	}
	if job.batch <= 0 {
		job.batch = defaultReplayBatch
	}
	if job.lookback <= 0 {
		job.lookback = defaultReplayLookback
	}
	if job.maxAttempts <= 0 {
		job.maxAttempts = defaultReplayAttempts
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type eventReplayJob struct {
	logg        *logger.Logger
	repo        replayCandidateLister
	retrier     eventRetrier
	metrics     *metrics.CronJobMetrics
	batch       int
	lookback    time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *eventReplayJob) Name() string { return eventReplayJobName }

func (j *eventReplayJob) Run(ctx context.Context) error {
	candidates, err := j.repo.ListReplayCandidates(ctx, billing.ReplayCandidatesQuery{
		Outcomes:    []enums.ReconcileOutcome{enums.ReconcileOutcomeStatusOnly, enums.ReconcileOutcomeUnmatched},
		Since:       j.now().Add(-j.lookback),
		MaxAttempts: j.maxAttempts,
		Limit:       j.batch,
	})
	if err != nil {
		return fmt.Errorf("list replay candidates: %w", err)
	}
	j.metrics.SetReplayBacklog(len(candidates))

	var (
		errs     error
		advanced int
	)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		receipt, err := j.retrier.Retry(ctx, candidate)
		if err != nil {
			if te := pkgerrors.As(err); te != nil && te.Code() == pkgerrors.CodeNotFound {
				continue
			}
			j.metrics.IncReplayed("error")
			errs = multierr.Append(errs, fmt.Errorf("replay event %s: %w", candidate.PaymentEventID, err))
			continue
		}
		if receipt == nil {
			continue
		}
		j.metrics.IncReplayed(receipt.Outcome.String())
		if !receipt.Outcome.NeedsReplay() {
			advanced++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"advanced":   advanced,
		"failed":     len(multierr.Errors(errs)),
	}), "event replay finished")
	return errs
}
