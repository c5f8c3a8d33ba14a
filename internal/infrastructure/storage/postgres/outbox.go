package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"orvit/internal/core/clock"
	"orvit/internal/core/id"
	"orvit/internal/domain/grni"
	"orvit/pkg/logger"
)

// OutboxStatus is the delivery state of a notification row.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// MaxDeliveryAttempts is the number of failed dispatches before a row is FAILED.
const MaxDeliveryAttempts = 5

var _ grni.Notifier = (*NotificationOutbox)(nil)

// NotificationOutbox writes alert notifications into grni_notifications.
type NotificationOutbox struct {
	txManager *TxManager
}

// NewNotificationOutbox creates the outbox writer.
func NewNotificationOutbox(txManager *TxManager) *NotificationOutbox {
	return &NotificationOutbox{txManager: txManager}
}

// Enqueue implements grni.Notifier. It MUST be called inside a transaction so
// the row commits together with the alert flag of its accrual.
func (o *NotificationOutbox) Enqueue(ctx context.Context, n *grni.Notification) error {
	tx := o.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("notification enqueue requires transaction context")
	}
	if id.IsNil(n.ID) {
		n.ID = id.New()
	}

	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal notification metadata: %w", err)
	}

	sql, args, err := psql.Insert("grni_notifications").
		Columns("id", "company_id", "user_id", "type", "priority", "subject", "body", "metadata", "status", "created_at").
		Values(n.ID, n.CompanyID, n.UserID, n.Type, n.Priority, n.Subject, n.Body, meta, OutboxStatusPending, n.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notification insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// OutboxMessage is a notification row as read by the relay.
type OutboxMessage struct {
	ID          id.ID         `db:"id"`
	CompanyID   int64         `db:"company_id"`
	UserID      int64         `db:"user_id"`
	Type        string        `db:"type"`
	Priority    grni.Priority `db:"priority"`
	Subject     string        `db:"subject"`
	Body        string        `db:"body"`
	Metadata    []byte        `db:"metadata"`
	Status      OutboxStatus  `db:"status"`
	RetryCount  int           `db:"retry_count"`
	LastError   *string       `db:"last_error"`
	NextRetryAt *time.Time    `db:"next_retry_at"`
	CreatedAt   time.Time     `db:"created_at"`
	SentAt      *time.Time    `db:"sent_at"`
}

// Notification decodes the row back into the domain type.
func (m *OutboxMessage) Notification() (*grni.Notification, error) {
	n := &grni.Notification{
		ID:        m.ID,
		CompanyID: m.CompanyID,
		UserID:    m.UserID,
		Type:      m.Type,
		Priority:  m.Priority,
		Subject:   m.Subject,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return n, nil
}

// Dispatcher delivers a notification to its recipient (mail or in-app inbox).
type Dispatcher interface {
	Dispatch(ctx context.Context, n *grni.Notification) error
}

// NotificationRelay drains PENDING notifications to a Dispatcher.
// Several relays may run concurrently: rows are claimed with SKIP LOCKED.
type NotificationRelay struct {
	txManager  *TxManager
	dispatcher Dispatcher
	clock      clock.Clock
	batchSize  int
}

// NewNotificationRelay creates a relay.
func NewNotificationRelay(txManager *TxManager, dispatcher Dispatcher, clk clock.Clock, batchSize int) *NotificationRelay {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &NotificationRelay{txManager: txManager, dispatcher: dispatcher, clock: clk, batchSize: batchSize}
}

func claimQuery(now time.Time, limit int) (string, []any, error) {
	return psql.Select(
		"id", "company_id", "user_id", "type", "priority", "subject", "body",
		"metadata", "status", "retry_count", "last_error", "next_retry_at",
		"created_at", "sent_at",
	).
		From("grni_notifications").
		Where(squirrel.Eq{"status": OutboxStatusPending}).
		Where(squirrel.Or{
			squirrel.Eq{"next_retry_at": nil},
			squirrel.LtOrEq{"next_retry_at": now},
		}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
}

// retryDelay doubles per attempt: 1m, 2m, 4m, 8m.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Minute << (attempt - 1)
}

// ProcessBatch claims and dispatches one batch. Returns the number sent.
func (r *NotificationRelay) ProcessBatch(ctx context.Context) (int, error) {
	sent := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := r.clock.Now()
		sql, args, err := claimQuery(now, r.batchSize)
		if err != nil {
			return fmt.Errorf("build claim query: %w", err)
		}

		var messages []*OutboxMessage
		if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &messages, sql, args...); err != nil {
			return fmt.Errorf("fetch notifications: %w", err)
		}

		for _, msg := range messages {
			if r.deliver(ctx, msg, now) {
				sent++
			}
		}
		return nil
	})
	return sent, err
}

// deliver dispatches one row and records the outcome. Bookkeeping errors
// are logged; the row stays PENDING and is retried on the next batch.
func (r *NotificationRelay) deliver(ctx context.Context, msg *OutboxMessage, now time.Time) bool {
	n, err := msg.Notification()
	if err == nil {
		err = r.dispatcher.Dispatch(ctx, n)
	}

	q := psql.Update("grni_notifications").Where(squirrel.Eq{"id": msg.ID})
	if err == nil {
		q = q.Set("status", OutboxStatusSent).Set("sent_at", now)
	} else {
		attempts := msg.RetryCount + 1
		status := OutboxStatusPending
		if attempts >= MaxDeliveryAttempts {
			status = OutboxStatusFailed
		}
		q = q.Set("retry_count", attempts).
			Set("last_error", err.Error()).
			Set("next_retry_at", now.Add(retryDelay(attempts))).
			Set("status", status)
		logger.Warn(ctx, "notification dispatch failed",
			"notification_id", msg.ID,
			"attempt", attempts,
			"status", status,
			"error", err)
	}

	sql, args, buildErr := q.ToSql()
	if buildErr != nil {
		logger.Error(ctx, "build notification update", "error", buildErr)
		return false
	}
	execErr := r.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
		_, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
		return err
	})
	if execErr != nil {
		logger.Error(ctx, "record notification outcome", "notification_id", msg.ID, "error", execErr)
		return false
	}
	return err == nil
}
