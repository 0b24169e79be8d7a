package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/realtime"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	UpsertNotifications(ctx context.Context, rows []model.Notification) ([]model.Notification, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	GetNotification(ctx context.Context, userID, id string) (*model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)

	UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetPushSubscription(ctx context.Context, userID string) (*model.PushSubscription, error)
	FindPushSubscriptions(ctx context.Context, userIDs []string) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID string) error
	DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error

	ListParticipants(ctx context.Context, matchID string) ([]model.Participant, error)
	GetMatch(ctx context.Context, matchID string) (*model.Match, error)
	ListMatchesStartingBetween(ctx context.Context, from, to time.Time) ([]model.Match, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db        *gorm.DB
	publisher Publisher
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying connection.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

type pairKey struct {
	matchID string
	userID  string
}

// UpsertNotifications writes all rows in one transaction keyed by
// (match_id, user_id). Existing rows take the new message and become unread.
// The stored rows are returned and published once the transaction commits.
func (s *gormStore) UpsertNotifications(ctx context.Context, rows []model.Notification) ([]model.Notification, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	byMatch := make(map[string][]string)
	for i := range rows {
		rows[i].IsRead = false
		byMatch[rows[i].MatchID] = append(byMatch[rows[i].MatchID], rows[i].UserID)
	}

	existing := make(map[pairKey]struct{})
	var stored []model.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for matchID, userIDs := range byMatch {
			var found []model.Notification
			if err := tx.Select("match_id", "user_id").
				Where("match_id = ? AND user_id IN ?", matchID, userIDs).
				Find(&found).Error; err != nil {
				return fmt.Errorf("failed to look up existing notifications for match %s: %w", matchID, err)
			}
			for _, n := range found {
				existing[pairKey{n.MatchID, n.UserID}] = struct{}{}
			}
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"message", "is_read", "created_at"}),
		}).Create(&rows).Error; err != nil {
			return fmt.Errorf("batch upsert notifications failed: %w", err)
		}

		for matchID, userIDs := range byMatch {
			var fresh []model.Notification
			if err := tx.Where("match_id = ? AND user_id IN ?", matchID, userIDs).
				Find(&fresh).Error; err != nil {
				return fmt.Errorf("failed to reload notifications for match %s: %w", matchID, err)
			}
			stored = append(stored, fresh...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		for i := range stored {
			event := realtime.EventInsert
			if _, ok := existing[pairKey{stored[i].MatchID, stored[i].UserID}]; ok {
				event = realtime.EventUpdate
			}
			row := stored[i]
			s.publisher.Publish(realtime.Change{
				Table:   TableNotifications,
				Event:   event,
				Record:  row,
				Columns: map[string]string{"user_id": row.UserID, "match_id": row.MatchID},
			})
		}
	}
	return stored, nil
}

// ListNotifications returns the user's notifications newest first.
func (s *gormStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	var rows []model.Notification
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %s: %w", userID, err)
	}
	return rows, nil
}

// GetNotification loads one notification owned by userID.
func (s *gormStore) GetNotification(ctx context.Context, userID, id string) (*model.Notification, error) {
	var n model.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	return &n, nil
}

// MarkNotificationRead flags one notification as read. Re-marking is a no-op.
func (s *gormStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	n, err := s.GetNotification(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true).Error; err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification of the user.
func (s *gormStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read for user %s: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertPushSubscription stores the user's subscription, replacing any
// previous one for the same user.
func (s *gormStore) UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if sub.UserID == "" {
		return errors.New("push subscription requires a user id")
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscription", "device_info", "updated_at"}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to upsert push subscription for user %s: %w", sub.UserID, err)
	}
	return nil
}

// GetPushSubscription returns the user's stored subscription.
func (s *gormStore) GetPushSubscription(ctx context.Context, userID string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load push subscription for user %s: %w", userID, err)
	}
	return &sub, nil
}

// FindPushSubscriptions returns the subscriptions of the given users.
func (s *gormStore) FindPushSubscriptions(ctx context.Context, userIDs []string) ([]model.PushSubscription, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch push subscriptions: %w", err)
	}
	return subs, nil
}

// DeletePushSubscription removes the user's subscription.
func (s *gormStore) DeletePushSubscription(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription for user %s: %w", userID, err)
	}
	return nil
}

// DeletePushSubscriptionByEndpoint removes whichever subscription points at
// endpoint. The push service reports expiry by endpoint only.
func (s *gormStore) DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).
		Where(datatypes.JSONQuery("subscription").Equals(endpoint, "endpoint")).
		Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete expired subscription %s: %w", endpoint, err)
	}
	return nil
}

// ListParticipants returns the roster of a match, guests included.
func (s *gormStore) ListParticipants(ctx context.Context, matchID string) ([]model.Participant, error) {
	var rows []model.Participant
	if err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list participants for match %s: %w", matchID, err)
	}
	return rows, nil
}

// GetMatch loads a match by id.
func (s *gormStore) GetMatch(ctx context.Context, matchID string) (*model.Match, error) {
	var m model.Match
	err := s.db.WithContext(ctx).Where("id = ?", matchID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	return &m, nil
}

// ListMatchesStartingBetween returns matches with from <= starts_at < to.
func (s *gormStore) ListMatchesStartingBetween(ctx context.Context, from, to time.Time) ([]model.Match, error) {
	var rows []model.Match
	if err := s.db.WithContext(ctx).
		Where("starts_at >= ? AND starts_at < ?", from, to).
		Order("starts_at").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list upcoming matches: %w", err)
	}
	return rows, nil
}
