package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const defaultRetryDelay = 30 * time.Second

// AuditFlushHandler drains queued callback attempts into the audit sink.
// Attempts land on the queue only when the inline audit write failed, so a
// handler failure requeues with delay rather than dropping the record.
type AuditFlushHandler struct {
	sink   core.AuditSink
	policy RetryPolicy
}

func NewAuditFlushHandler(sink core.AuditSink, policy RetryPolicy) (*AuditFlushHandler, error) {
	if sink == nil {
		return nil, fmt.Errorf("gojob: audit sink is required")
	}
	return &AuditFlushHandler{sink: sink, policy: policy}, nil
}

func (h *AuditFlushHandler) Handle(ctx context.Context, delivery core.JobDelivery, attempt int) error {
	if h == nil || h.sink == nil {
		return fmt.Errorf("gojob: audit flush handler is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDAuditFlush {
		return h.reject(ctx, delivery, attempt, "unexpected job id")
	}

	record, err := core.CallbackAttemptFromParameters(msg.Parameters)
	if err != nil {
		if rejectErr := h.reject(ctx, delivery, attempt, err.Error()); rejectErr != nil {
			return rejectErr
		}
		return err
	}

	if err := h.sink.Append(ctx, record); err != nil {
		nack := h.policy.NormalizeAttempt(core.JobNackOptions{
			Delay:   defaultRetryDelay,
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		if nackErr := delivery.Nack(ctx, nack); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}

func (h *AuditFlushHandler) reject(ctx context.Context, delivery core.JobDelivery, attempt int, reason string) error {
	return delivery.Nack(ctx, h.policy.NormalizeAttempt(core.JobNackOptions{
		DeadLetter: true,
		Reason:     reason,
	}, attempt))
}

// PendingSweepHandler runs the stale-pending sweep when its scheduled job
// fires.
type PendingSweepHandler struct {
	service core.CallbackService
}

func NewPendingSweepHandler(service core.CallbackService) (*PendingSweepHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("gojob: callback service is required")
	}
	return &PendingSweepHandler{service: service}, nil
}

func (h *PendingSweepHandler) Handle(ctx context.Context, delivery core.JobDelivery, attempt int) error {
	if h == nil || h.service == nil {
		return fmt.Errorf("gojob: pending sweep handler is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	if _, err := h.service.SweepStalePending(ctx); err != nil {
		nack := core.JobNackOptions{
			Delay:   defaultRetryDelay,
			Requeue: true,
			Reason:  err.Error(),
		}
		if nackErr := delivery.Nack(ctx, nack); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}
