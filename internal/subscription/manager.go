// Package subscription registers the background worker, obtains a push
// subscription and hands it to the backend.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"pickup-push-backend/internal/capability"
	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/wire"
)

const (
	DefaultScriptURL = "/sw.js"
	DefaultScope     = "/"
)

// SubscribeOptions are passed to PushManager.Subscribe.
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey string
}

// PushManager is the push surface of a worker registration.
type PushManager interface {
	GetSubscription(ctx context.Context) (*webpush.Subscription, error)
	Subscribe(ctx context.Context, opts SubscribeOptions) (*webpush.Subscription, error)
}

// Registration is a registered background worker.
type Registration interface {
	PushManager() PushManager
	ShowNotification(ctx context.Context, title string, opts wire.NotificationOptions) error
}

// WorkerRuntime registers background workers.
type WorkerRuntime interface {
	Register(ctx context.Context, scriptURL, scope string) (Registration, error)
}

// Principal resolves the signed-in user.
type Principal interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// PermissionChecker reports whether notifications are allowed.
type PermissionChecker interface {
	HasPermission() bool
}

// Record is what gets persisted for a user.
type Record struct {
	UserID       string
	Subscription webpush.Subscription
	DeviceInfo   model.DeviceInfo
}

// Saver persists a subscription, replacing the user's previous one.
type Saver interface {
	SaveSubscription(ctx context.Context, rec Record) error
}

// ErrNoPrincipal is returned by a Principal when nobody is signed in.
var ErrNoPrincipal = errors.New("no signed-in user")

// Config holds manager settings.
type Config struct {
	VAPIDPublicKey string
	ScriptURL      string
	Scope          string
	UserAgent      string
}

// Manager is the subscription manager. Every public method fails soft:
// problems are logged and reported as a nil result.
type Manager struct {
	rt         WorkerRuntime
	snap       capability.Snapshot
	permission PermissionChecker
	principal  Principal
	saver      Saver
	cfg        Config
	log        *zap.Logger
}

// NewManager creates a manager. rt may be nil on runtimes without workers.
func NewManager(rt WorkerRuntime, snap capability.Snapshot, perm PermissionChecker, principal Principal, saver Saver, cfg Config) *Manager {
	if cfg.ScriptURL == "" {
		cfg.ScriptURL = DefaultScriptURL
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	return &Manager{
		rt:         rt,
		snap:       snap,
		permission: perm,
		principal:  principal,
		saver:      saver,
		cfg:        cfg,
		log:        logger.WithModule("subscription"),
	}
}

// RegisterWorker registers the background worker script.
func (m *Manager) RegisterWorker(ctx context.Context) Registration {
	if m.rt == nil {
		m.log.Debug("worker runtime unavailable")
		return nil
	}
	reg, err := m.rt.Register(ctx, m.cfg.ScriptURL, m.cfg.Scope)
	if err != nil {
		m.log.Warn("worker registration failed", zap.String("script", m.cfg.ScriptURL), zap.Error(err))
		return nil
	}
	return reg
}

// Subscribe returns the active push subscription, creating and saving one
// when needed.
func (m *Manager) Subscribe(ctx context.Context) *webpush.Subscription {
	if !m.snap.PushAPI || m.rt == nil {
		m.log.Debug("push api unavailable; not subscribing")
		return nil
	}

	reg := m.RegisterWorker(ctx)
	if reg == nil {
		return nil
	}

	sub, err := m.obtain(ctx, reg.PushManager())
	if err != nil {
		m.log.Warn("push subscribe failed", zap.Error(err))
		return nil
	}

	if m.principal == nil {
		return nil
	}
	userID, err := m.principal.CurrentUserID(ctx)
	if err != nil || userID == "" {
		m.log.Info("no signed-in user; subscription not saved", zap.Error(err))
		return nil
	}

	rec := Record{
		UserID:       userID,
		Subscription: *sub,
		DeviceInfo:   m.snap.DeviceInfo(m.cfg.UserAgent),
	}
	if m.saver == nil {
		return nil
	}
	if err := m.saver.SaveSubscription(ctx, rec); err != nil {
		m.log.Warn("failed to save push subscription", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	if m.snap.NeedsPermissionHint() {
		confirm := wire.PushPayload{
			Title: "Notifications enabled",
			Body:  "You'll get match updates on this device.",
			Tag:   "subscription-confirmed",
		}.WithDefaults()
		if err := reg.ShowNotification(ctx, confirm.Title, confirm.Options()); err != nil {
			m.log.Debug("confirmation notification failed", zap.Error(err))
		}
	}
	return sub
}

func (m *Manager) obtain(ctx context.Context, pm PushManager) (*webpush.Subscription, error) {
	if pm == nil {
		return nil, errors.New("registration has no push manager")
	}
	existing, err := pm.GetSubscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	if m.cfg.VAPIDPublicKey == "" {
		return nil, errors.New("vapid public key is not configured")
	}
	sub, err := pm.Subscribe(ctx, SubscribeOptions{UserVisibleOnly: true, ApplicationServerKey: m.cfg.VAPIDPublicKey})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if sub == nil {
		return nil, errors.New("subscribe returned no subscription")
	}
	return sub, nil
}

// EnsureSubscribed is the app-load flow: it subscribes only when permission
// is already granted and never prompts.
func (m *Manager) EnsureSubscribed(ctx context.Context) *webpush.Subscription {
	if m.permission == nil || !m.permission.HasPermission() {
		return nil
	}
	return m.Subscribe(ctx)
}

// HandleMessage re-subscribes when the worker reports that the push service
// rotated the subscription. Other messages are ignored.
func (m *Manager) HandleMessage(ctx context.Context, msg wire.Message) *webpush.Subscription {
	if msg.Type != wire.MessagePushSubscriptionChanged {
		return nil
	}
	m.log.Info("push subscription changed; re-subscribing")
	return m.EnsureSubscribed(ctx)
}
