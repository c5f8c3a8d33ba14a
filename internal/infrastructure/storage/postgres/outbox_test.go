package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orvit/internal/core/id"
	"orvit/internal/domain/grni"
)

func TestClaimQuery(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sql, args, err := claimQuery(now, 25)
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM grni_notifications WHERE status = $1")
	assert.Contains(t, sql, "(next_retry_at IS NULL OR next_retry_at <= $2)")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY created_at LIMIT 25 FOR UPDATE SKIP LOCKED"), sql)
	assert.Equal(t, []any{OutboxStatusPending, now}, args)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Minute, retryDelay(0))
	assert.Equal(t, time.Minute, retryDelay(1))
	assert.Equal(t, 2*time.Minute, retryDelay(2))
	assert.Equal(t, 4*time.Minute, retryDelay(3))
	assert.Equal(t, 8*time.Minute, retryDelay(4))
}

func TestOutboxMessage_Notification(t *testing.T) {
	msg := &OutboxMessage{
		ID:        id.New(),
		CompanyID: 7,
		UserID:    41,
		Type:      grni.NotificationType,
		Priority:  grni.PriorityUrgent,
		Subject:   "[GRNI CRITICA] Acindar - 92 días sin facturar",
		Metadata:  []byte(`{"days":92,"level":"CRITICA"}`),
	}

	n, err := msg.Notification()
	require.NoError(t, err)
	assert.Equal(t, msg.ID, n.ID)
	assert.Equal(t, int64(41), n.UserID)
	assert.Equal(t, grni.PriorityUrgent, n.Priority)
	assert.Equal(t, "CRITICA", n.Metadata["level"])

	msg.Metadata = []byte("{broken")
	_, err = msg.Notification()
	assert.Error(t, err)
}
