package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/store"
)

// NotificationStore persists notifications into the users' inbox. It is
// the durable events.Sink.
type NotificationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewNotificationStore creates a NotificationStore. If logger is nil, slog.Default is used.
func NewNotificationStore(db store.DBTX, logger *slog.Logger) *NotificationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationStore{
		db:     db,
		logger: logger.With(slog.String("component", "notification_store")),
	}
}

var _ events.Sink = (*NotificationStore)(nil)

// Emit inserts n as an unread notification.
func (s *NotificationStore) Emit(ctx context.Context, n events.Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("%w: notification without recipient", store.ErrInvalidEntity)
	}

	var metadata []byte
	if len(n.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(n.Metadata); err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, notification_type, message, metadata, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
	`, uuid.New(), n.UserID, n.Type, n.Message, metadata, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", MapError(err))
	}
	return nil
}
