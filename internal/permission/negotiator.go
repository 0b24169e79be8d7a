package permission

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"pickup-push-backend/internal/capability"
	"pickup-push-backend/internal/logger"
)

// Runtime is the notification permission surface of the hosting browser.
type Runtime interface {
	NotificationAPI() bool
	Permission() capability.Permission
	RequestPermission(ctx context.Context) (capability.Permission, error)
}

// Instructor shows the one-time iOS notice that Settings > Safari must also
// allow notifications for the origin.
type Instructor interface {
	ShowIOSSettingsHint(ctx context.Context)
}

// Negotiator requests and reports notification permission.
type Negotiator struct {
	rt         Runtime
	hints      HintStore
	snap       capability.Snapshot
	instructor Instructor
	instructed atomic.Bool
	log        *zap.Logger
}

// NewNegotiator creates a Negotiator for one session snapshot.
// instructor may be nil.
func NewNegotiator(rt Runtime, hints HintStore, snap capability.Snapshot, instructor Instructor) *Negotiator {
	return &Negotiator{
		rt:         rt,
		hints:      hints,
		snap:       snap,
		instructor: instructor,
		log:        logger.WithModule("permission"),
	}
}

type gestureKey struct{}

// WithUserGesture marks ctx as originating from an explicit user action.
// Browsers silently deny prompts issued without one.
func WithUserGesture(ctx context.Context) context.Context {
	return context.WithValue(ctx, gestureKey{}, true)
}

func hasUserGesture(ctx context.Context) bool {
	v, _ := ctx.Value(gestureKey{}).(bool)
	return v
}

// RequestPermission prompts once and reports whether permission was granted.
func (n *Negotiator) RequestPermission(ctx context.Context) bool {
	if n.rt == nil || !n.rt.NotificationAPI() {
		n.log.Debug("notification api unavailable; not prompting")
		return false
	}
	if !hasUserGesture(ctx) {
		n.log.Warn("permission prompt requested without a user gesture; refusing")
		return false
	}

	result, err := n.rt.RequestPermission(ctx)
	if err != nil {
		n.log.Warn("permission prompt failed", zap.Error(err))
		return false
	}
	if result != capability.PermissionGranted {
		n.log.Info("notification permission not granted", zap.String("result", string(result)))
		return false
	}

	if n.hints != nil {
		if err := n.hints.Set(HintKey, HintGranted); err != nil {
			n.log.Warn("failed to persist permission hint", zap.Error(err))
		}
	}

	if n.snap.IsIOS && n.instructor != nil && n.instructed.CompareAndSwap(false, true) {
		n.instructor.ShowIOSSettingsHint(ctx)
	}
	return true
}

// HasPermission reports the current grant. On Safari and iOS a persisted hint
// also counts, because the live permission read is unreliable across reloads
// there. Elsewhere only the live value is trusted.
func (n *Negotiator) HasPermission() bool {
	live := n.rt != nil && n.rt.NotificationAPI() && n.rt.Permission() == capability.PermissionGranted
	if live || !n.snap.NeedsPermissionHint() || n.hints == nil {
		return live
	}
	v, ok := n.hints.Get(HintKey)
	return ok && v == HintGranted
}

// Snapshot returns the capability snapshot the negotiator was built with.
func (n *Negotiator) Snapshot() capability.Snapshot {
	return n.snap
}
