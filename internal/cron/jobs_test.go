package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeReconciler struct {
	summary checkout.ReconcileSummary
	err     error
	runs    int
}

func (f *fakeReconciler) Run(context.Context) (checkout.ReconcileSummary, error) {
	f.runs++
	return f.summary, f.err
}

func TestStockCommitJobRunsReconciler(t *testing.T) {
	rec := &fakeReconciler{summary: checkout.ReconcileSummary{Scanned: 2, Completed: 1, StillPending: 1}}
	job, err := NewStockCommitJob(rec, logger.Nop())
	require.NoError(t, err)
	require.Equal(t, "stock-commit-reconcile", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, rec.runs)

	rec.err = errors.New("db down")
	require.ErrorContains(t, job.Run(context.Background()), "db down")
}

type fakeSweeper struct {
	cutoff time.Time
	limit  int
	err    error
}

func (f *fakeSweeper) SweepStale(_ context.Context, before time.Time, limit int) (payments.SweepSummary, error) {
	f.cutoff = before
	f.limit = limit
	return payments.SweepSummary{Scanned: 3, Captured: 1}, f.err
}

func TestStalePaymentJobUsesAgeAndBatch(t *testing.T) {
	sweeper := &fakeSweeper{}
	jobIface, err := NewStalePaymentJob(StalePaymentJobParams{
		Logger:   logger.Nop(),
		Payments: sweeper,
		MaxAge:   30 * time.Minute,
		Batch:    10,
	})
	require.NoError(t, err)
	job := jobIface.(*stalePaymentJob)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-30*time.Minute), sweeper.cutoff)
	require.Equal(t, 10, sweeper.limit)

	sweeper.err = errors.New("provider down")
	require.Error(t, job.Run(context.Background()))
}

func TestStalePaymentJobDefaults(t *testing.T) {
	jobIface, err := NewStalePaymentJob(StalePaymentJobParams{Logger: logger.Nop(), Payments: &fakeSweeper{}})
	require.NoError(t, err)
	job := jobIface.(*stalePaymentJob)
	require.Equal(t, defaultStalePaymentAge, job.age)
	require.Equal(t, defaultStalePaymentBatch, job.batch)

	_, err = NewStalePaymentJob(StalePaymentJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
