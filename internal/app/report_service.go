// internal/app/report_service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/infra/api"
)

// Outcome of a report submission.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeSavedForSync Outcome = "saved_for_sync"
)

// ErrConnectivity is returned when a report could not reach the backend and
// was not queued either.
var ErrConnectivity = errors.New("no connection to the server, the report was not sent")

type ReportAPI interface {
	SubmitReport(ctx context.Context, r report.Report) error
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Connectivity answers whether the backend is reachable right now.
type Connectivity interface {
	CheckOnline(ctx context.Context) bool
}

type ReportService struct {
	api       ReportAPI
	tokens    TokenSource
	queue     *OfflineQueue
	conn      Connectivity
	reminders *ReminderService
	log       *logrus.Entry
	rec       Recorder
}

func NewReportService(reportAPI ReportAPI, tokens TokenSource, queue *OfflineQueue, conn Connectivity, reminders *ReminderService, log *logrus.Entry, rec Recorder) *ReportService {
	return &ReportService{
		api:       reportAPI,
		tokens:    tokens,
		queue:     queue,
		conn:      conn,
		reminders: reminders,
		log:       log,
		rec:       orNop(rec),
	}
}

// Submit sends a report. Backend rejections and session expiry are returned
// as is. A transport failure while offline queues the report for
// background sync; otherwise it surfaces as ErrConnectivity.
func (s *ReportService) Submit(ctx context.Context, r report.Report) (Outcome, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	logCtx := s.log.WithFields(logrus.Fields{"group_id": r.GroupID, "kind": r.Kind()})

	// Captured before the attempt, so a 401 that clears the session cannot
	// change what gets queued.
	token, tokenErr := s.tokens.Token(ctx)

	err := s.api.SubmitReport(ctx, r)
	if err == nil {
		s.rec.ReportSubmitted(string(OutcomeSent))
		logCtx.Info("Report sent")
		if s.reminders != nil {
			if err := s.reminders.Remove(ctx, r.GroupID); err != nil {
				logCtx.WithError(err).Warn("Failed to clear urgent reminder")
			}
		}
		return OutcomeSent, nil
	}

	if !errors.Is(err, api.ErrTransport) {
		s.rec.ReportSubmitted("failed")
		return "", err
	}

	if s.conn != nil && s.conn.CheckOnline(ctx) {
		logCtx.WithError(err).Warn("Report failed while the backend looks reachable")
		s.rec.ReportSubmitted("failed")
		return "", fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	if tokenErr != nil {
		s.rec.ReportSubmitted("failed")
		return "", fmt.Errorf("%w: %w", ErrConnectivity, tokenErr)
	}

	key, qErr := s.queue.Enqueue(ctx, r, token)
	if qErr != nil {
		if !errors.Is(qErr, ErrSyncUnsupported) {
			logCtx.WithError(qErr).Error("Failed to queue report")
		}
		s.rec.ReportSubmitted("failed")
		return "", fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	logCtx.WithField("key", key).Info("Offline, report saved for sync")
	s.rec.ReportSubmitted(string(OutcomeSavedForSync))
	return OutcomeSavedForSync, nil
}
