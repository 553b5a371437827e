package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

type stubCandidates struct {
	query billing.ReplayCandidatesQuery
	recs  []models.EventReconciliation
	err   error
}

func (s *stubCandidates) ListReplayCandidates(ctx context.Context, params billing.ReplayCandidatesQuery) ([]models.EventReconciliation, error) {
	s.query = params
	return s.recs, s.err
}

type stubRetrier struct {
	results map[uuid.UUID]error
	retried []uuid.UUID
}

func (s *stubRetrier) Retry(ctx context.Context, prior models.EventReconciliation) (*razorpaywebhook.Receipt, error) {
	s.retried = append(s.retried, prior.PaymentEventID)
	if err := s.results[prior.PaymentEventID]; err != nil {
		return nil, err
	}
	return &razorpaywebhook.Receipt{PaymentEventID: prior.PaymentEventID, Outcome: enums.ReconcileOutcomeApplied}, nil
}

func TestEventReplayJobQueriesDegradedOutcomes(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubCandidates{}
	job, err := NewEventReplayJob(EventReplayJobParams{
		Logger:      logger.Nop(),
		Repo:        repo,
		Retrier:     &stubRetrier{},
		BatchSize:   25,
		Lookback:    time.Hour,
		MaxAttempts: 5,
		Now:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "event-replay" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if repo.query.Limit != 25 || repo.query.MaxAttempts != 5 {
		t.Fatalf("unexpected query %+v", repo.query)
	}
	if !repo.query.Since.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected since %v", repo.query.Since)
	}
	if len(repo.query.Outcomes) != 2 {
		t.Fatalf("expected status_only and unmatched, got %v", repo.query.Outcomes)
	}
}

func TestEventReplayJobAggregatesFailures(t *testing.T) {
	ok, failA, failB, gone := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	repo := &stubCandidates{recs: []models.EventReconciliation{
		{PaymentEventID: ok, Outcome: enums.ReconcileOutcomeStatusOnly},
		{PaymentEventID: failA, Outcome: enums.ReconcileOutcomeUnmatched},
		{PaymentEventID: gone, Outcome: enums.ReconcileOutcomeUnmatched},
		{PaymentEventID: failB, Outcome: enums.ReconcileOutcomeStatusOnly},
	}}
	retrier := &stubRetrier{results: map[uuid.UUID]error{
		failA: pkgerrors.New(pkgerrors.CodeDependency, "db down"),
		failB: errors.New("write failed"),
		gone:  pkgerrors.New(pkgerrors.CodeNotFound, "payment event not found"),
	}}
	job, err := NewEventReplayJob(EventReplayJobParams{Logger: logger.Nop(), Repo: repo, Retrier: retrier})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	err = job.Run(context.Background())
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 aggregated errors, got %d (%v)", got, err)
	}
	if len(retrier.retried) != 4 {
		t.Fatalf("every candidate should be attempted, got %d", len(retrier.retried))
	}
}

func TestEventReplayJobListFailure(t *testing.T) {
	job, _ := NewEventReplayJob(EventReplayJobParams{Logger: logger.Nop(), Repo: &stubCandidates{err: errors.New("boom")}, Retrier: &stubRetrier{}})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestNewEventReplayJobValidates(t *testing.T) {
	if _, err := NewEventReplayJob(EventReplayJobParams{Repo: &stubCandidates{}, Retrier: &stubRetrier{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewEventReplayJob(EventReplayJobParams{Logger: logger.Nop(), Retrier: &stubRetrier{}}); err == nil {
		t.Fatal("expected repo error")
	}
	if _, err := NewEventReplayJob(EventReplayJobParams{Logger: logger.Nop(), Repo: &stubCandidates{}}); err == nil {
		t.Fatal("expected retrier error")
	}
}
