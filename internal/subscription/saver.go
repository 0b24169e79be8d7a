package subscription

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	"pickup-push-backend/internal/httpclient"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/wire"
)

// SubscriptionsPath is the authenticated upsert route.
const SubscriptionsPath = "/api/push/subscriptions"

// APISaver saves subscriptions through the backend HTTP API. The bearer token
// identifies the owner, so Record.UserID is not sent.
type APISaver struct {
	client *httpclient.Client
}

// NewAPISaver creates a saver for the API at baseURL.
func NewAPISaver(baseURL string, tokens httpclient.TokenSource, opts ...httpclient.Option) *APISaver {
	opts = append([]httpclient.Option{httpclient.WithTokenSource(tokens)}, opts...)
	return &APISaver{client: httpclient.New(baseURL, opts...)}
}

// SaveSubscription implements Saver.
func (s *APISaver) SaveSubscription(ctx context.Context, rec Record) error {
	info := rec.DeviceInfo
	body := wire.SubscriptionRecord{Subscription: rec.Subscription, DeviceInfo: &info}
	if err := s.client.PutJSON(ctx, SubscriptionsPath, body, nil); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// Upserter is the store operation StoreSaver needs.
type Upserter interface {
	UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error
}

// StoreSaver writes subscriptions straight to storage.
type StoreSaver struct {
	store Upserter
}

// NewStoreSaver creates a StoreSaver.
func NewStoreSaver(s Upserter) *StoreSaver {
	return &StoreSaver{store: s}
}

// SaveSubscription implements Saver.
func (s *StoreSaver) SaveSubscription(ctx context.Context, rec Record) error {
	if rec.UserID == "" {
		return errors.New("save subscription: missing user id")
	}
	return s.store.UpsertPushSubscription(ctx, &model.PushSubscription{
		UserID:       rec.UserID,
		Subscription: datatypes.NewJSONType(rec.Subscription),
		DeviceInfo:   datatypes.NewJSONType(rec.DeviceInfo),
	})
}
