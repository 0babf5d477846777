package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateNotification inserts an in-app notification record and returns it.
// Records are create-once; the scheduler never mutates them afterwards.
func (s *Store) CreateNotification(ctx context.Context, userID, title, message, typ, link string, now time.Time) (Notification, error) {
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		Link:      link,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return Notification{}, err
	}
	return n, nil
}
