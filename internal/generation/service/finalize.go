package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"strings"

	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/notification"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultFailureMessage = "generation failed"

// Finalize moves a job to its terminal state. The status compare-and-set and
// the refund for a failure commit together, so a job that ends failed has
// been refunded exactly once. Calls on a terminal job are no-ops.
func (s *Service) Finalize(ctx context.Context, req generationdomain.FinalizeRequest) (generationdomain.FinalizeResult, error) {
	if !req.Status.Terminal() {
		return generationdomain.FinalizeResult{}, generationdomain.ErrNotTerminal
	}

	job, err := s.repo.FindByID(ctx, s.db, req.JobID)
	if err != nil {
		return generationdomain.FinalizeResult{}, err
	}
	if job == nil {
		return generationdomain.FinalizeResult{}, generationdomain.ErrNotFound
	}
	if job.Status.Terminal() {
		s.log.Debug("finalize skipped, job already terminal",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)),
			zap.String("source", req.Source),
		)
		return generationdomain.FinalizeResult{Applied: false, Job: *job}, nil
	}

	update := terminalUpdate(job, req)
	update.Now = s.clock.Now().UTC()

	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkTerminal(ctx, tx, update)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true
		if update.Status != generationdomain.StatusFailed || job.CreditsCost <= 0 {
			return nil
		}
		_, err = s.ledger.WithTx(tx).Refund(ctx, ledgerdomain.RefundRequest{
			UserID:       job.UserID,
			Amount:       job.CreditsCost,
			Reason:       refundReason(req.Source),
			RelatedJobID: &job.ID,
		})
		return err
	})
	if err != nil {
		if update.Status == generationdomain.StatusFailed {
			s.alertRefundFailure(ctx, job, err)
		}
		return generationdomain.FinalizeResult{}, err
	}

	current, err := s.repo.FindByID(ctx, s.db, job.ID)
	if err != nil {
		return generationdomain.FinalizeResult{}, err
	}
	if current == nil {
		return generationdomain.FinalizeResult{}, generationdomain.ErrNotFound
	}
	if !applied {
		return generationdomain.FinalizeResult{Applied: false, Job: *current}, nil
	}

	s.obsMetrics.RecordGenerationFinalized(ctx, string(current.Kind), current.Provider, string(current.Status))
	fields := []zap.Field{
		zap.String("job_id", current.ID.String()),
		zap.Int64("user_id", current.UserID),
		zap.String("status", string(current.Status)),
		zap.String("source", req.Source),
	}
	if current.Status == generationdomain.StatusFailed {
		fields = append(fields,
			zap.String("error_code", update.ErrorCode),
			zap.String("error_message", update.ErrorMessage),
			zap.Int64("refunded", current.CreditsCost),
		)
	}
	s.log.Info("generation.finalized", fields...)
	s.notify(ctx, current)

	return generationdomain.FinalizeResult{Applied: true, Job: *current}, nil
}

func terminalUpdate(job *generationdomain.Job, req generationdomain.FinalizeRequest) generationdomain.TerminalUpdate {
	update := generationdomain.TerminalUpdate{
		ID:            job.ID,
		ExternalJobID: strings.TrimSpace(req.ExternalJobID),
	}
	status := req.Status
	if status.State == providerdomain.StateCompleted && strings.TrimSpace(status.ResultURL) == "" {
		status = providerdomain.JobStatus{
			State:       providerdomain.StateFailed,
			ErrorDetail: "provider reported completion without a result",
			ErrorCode:   generationdomain.ErrorCodeMissingResult,
		}
	}

	if status.State == providerdomain.StateCompleted {
		update.Status = generationdomain.StatusCompleted
		update.ResultURL = strings.TrimSpace(status.ResultURL)
		return update
	}

	update.Status = generationdomain.StatusFailed
	update.ErrorMessage = strings.TrimSpace(status.ErrorDetail)
	if update.ErrorMessage == "" {
		update.ErrorMessage = defaultFailureMessage
	}
	// The column holds our own taxonomy; provider codes stay in the message.
	update.ErrorCode = errorCodeFor(req.Source)
	providerCode := strings.TrimSpace(status.ErrorCode)
	switch {
	case providerCode == generationdomain.ErrorCodeMissingResult:
		update.ErrorCode = providerCode
	case providerCode != "" && providerCode != update.ErrorCode:
		update.ErrorMessage = fmt.Sprintf("%s (code %s)", update.ErrorMessage, providerCode)
	}
	return update
}

func errorCodeFor(source string) string {
	switch source {
	case generationdomain.SourceDispatch:
		return generationdomain.ErrorCodeDispatch
	case generationdomain.SourceStale:
		return generationdomain.ErrorCodeStaleTimeout
	case generationdomain.SourcePollErrors:
		return generationdomain.ErrorCodePollErrorLimit
	default:
		return generationdomain.ErrorCodeProvider
	}
}

func refundReason(source string) string {
	switch source {
	case generationdomain.SourceDispatch:
		return "dispatch_failed"
	case generationdomain.SourceStale:
		return "stale_timeout"
	case generationdomain.SourcePollErrors:
		return "poll_error_limit"
	default:
		return "provider_failed"
	}
}

// HandleCallback applies a status pushed by a provider. In-progress updates
// are acknowledged without touching the job. Without a configured token every
// callback is rejected and jobs finish through polling.
func (s *Service) HandleCallback(ctx context.Context, req generationdomain.CallbackRequest) (generationdomain.CallbackResult, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if s.callbackToken == "" {
		s.log.Warn("callback rejected, CALLBACK_TOKEN is not configured", zap.String("provider", provider))
		return generationdomain.CallbackResult{}, generationdomain.ErrCallbackUnauthorized
	}
	if !hmac.Equal([]byte(req.Token), []byte(s.callbackToken)) {
		return generationdomain.CallbackResult{}, generationdomain.ErrCallbackUnauthorized
	}

	parser, err := s.adapters.CallbackParser(provider)
	if err != nil {
		return generationdomain.CallbackResult{}, err
	}
	event, err := parser.ParseCallback(ctx, req.Payload, req.Headers)
	if err != nil {
		s.log.Warn("callback rejected", zap.String("provider", provider), zap.Error(err))
		return generationdomain.CallbackResult{}, err
	}

	job, err := s.repo.FindByExternalID(ctx, s.db, provider, event.ExternalJobID)
	if err != nil {
		return generationdomain.CallbackResult{}, err
	}
	if job == nil {
		s.log.Warn("callback for unknown job",
			zap.String("provider", provider),
			zap.String("external_job_id", event.ExternalJobID),
		)
		return generationdomain.CallbackResult{}, generationdomain.ErrNotFound
	}

	if !event.Status.Terminal() {
		return generationdomain.CallbackResult{JobID: job.ID, Ignored: true}, nil
	}

	result, err := s.Finalize(ctx, generationdomain.FinalizeRequest{
		JobID:  job.ID,
		Status: event.Status,
		Source: generationdomain.SourceCallback,
	})
	if err != nil {
		return generationdomain.CallbackResult{}, err
	}
	return generationdomain.CallbackResult{JobID: job.ID, Applied: result.Applied}, nil
}

func (s *Service) notify(ctx context.Context, job *generationdomain.Job) {
	if s.notifier == nil {
		return
	}
	event := notification.Event{
		Type:          notification.EventJobCompleted,
		JobID:         job.ID.String(),
		UserID:        job.UserID,
		Kind:          string(job.Kind),
		ModelKey:      job.ModelKey,
		CreditsCost:   job.CreditsCost,
		OccurredAt:    s.clock.Now().UTC(),
		CorrelationID: correlation.ExtractCorrelationID(ctx),
	}
	if job.Status == generationdomain.StatusFailed {
		event.Type = notification.EventJobFailed
		event.ErrorMessage = deref(job.ErrorMessage)
	} else {
		event.ResultURL = deref(job.ResultURL)
	}
	s.notifier.Publish(event)
}

// alertRefundFailure raises a refund that could not commit. The job stays
// non-terminal, so a later poll or stale sweep retries it.
func (s *Service) alertRefundFailure(ctx context.Context, job *generationdomain.Job, err error) {
	level := s.log.Error
	if errors.Is(err, context.Canceled) {
		level = s.log.Warn
	}
	level("generation refund failed",
		zap.String("job_id", job.ID.String()),
		zap.Int64("user_id", job.UserID),
		zap.Int64("amount", job.CreditsCost),
		zap.Bool("critical", true),
		zap.Error(err),
	)
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(notification.Event{
		Type:          notification.EventRefundFailed,
		JobID:         job.ID.String(),
		UserID:        job.UserID,
		Kind:          string(job.Kind),
		ModelKey:      job.ModelKey,
		CreditsCost:   job.CreditsCost,
		ErrorMessage:  err.Error(),
		OccurredAt:    s.clock.Now().UTC(),
		CorrelationID: correlation.ExtractCorrelationID(ctx),
	})
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
