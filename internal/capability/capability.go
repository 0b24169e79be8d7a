// Package capability classifies the browser runtime a device runs in.
//
// Every check fails closed: a missing signal means "not supported". The
// result of Detect is an immutable Snapshot that callers pass by value
// instead of re-running the checks mid-flow.
package capability

import (
	"context"
	"strings"

	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/parse"
)

// Minimum Safari release with web push support.
const (
	MinSafariPushMajor = 16
	MinSafariPushMinor = 4
)

// Permission mirrors the Notification.permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Env is the raw set of runtime signals a device reports.
type Env struct {
	UserAgent             string
	DisplayModeStandalone bool
	NavigatorStandalone   bool
	// LegacyStreamMarker is the window.MSStream marker set by old desktop
	// browsers that advertise iPhone tokens.
	LegacyStreamMarker bool
	NotificationAPI    bool
	ServiceWorkerAPI   bool
	PushManagerAPI     bool
	Permission         Permission
}

// Snapshot is the classified capability state for one session.
type Snapshot struct {
	IsIOS            bool       `json:"is_ios"`
	IsSafari         bool       `json:"is_safari"`
	IsPWA            bool       `json:"is_pwa"`
	Permission       Permission `json:"push_permission"`
	NotificationAPI  bool       `json:"notification_api"`
	PushAPI          bool       `json:"push_api"`
	IOSPushSupported bool       `json:"ios_push_supported"`
	PushSupported    bool       `json:"push_supported"`
}

// IsIOS reports an Apple mobile device.
func IsIOS(env Env) bool {
	if env.LegacyStreamMarker {
		return false
	}
	ua := env.UserAgent
	return strings.Contains(ua, "iPad") || strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPod")
}

// IsSafari reports Safari proper. Chrome and Android browsers also carry the
// "Safari" token, so any of their markers ahead of it disqualifies the UA.
func IsSafari(env Env) bool {
	ua := strings.ToLower(env.UserAgent)
	idx := strings.Index(ua, "safari")
	if idx < 0 {
		return false
	}
	prefix := ua[:idx]
	for _, marker := range []string{"chrome", "crios", "android"} {
		if strings.Contains(prefix, marker) {
			return false
		}
	}
	return true
}

// IsPWA reports standalone (installed) display mode.
func IsPWA(env Env) bool {
	return env.DisplayModeStandalone || env.NavigatorStandalone
}

// IOSPushSupported reports whether web push can work on this Apple runtime:
// always as an installed PWA, otherwise only on Safari 16.4 or newer.
func IOSPushSupported(env Env) bool {
	if IsPWA(env) {
		return true
	}
	if !IsSafari(env) {
		return false
	}
	major, minor, ok := parse.SafariVersion(env.UserAgent)
	if !ok {
		return false
	}
	return parse.VersionAtLeast(major, minor, MinSafariPushMajor, MinSafariPushMinor)
}

// Detect classifies env into a Snapshot.
func Detect(env Env) Snapshot {
	perm := env.Permission
	switch perm {
	case PermissionGranted, PermissionDenied, PermissionDefault:
	default:
		perm = PermissionDefault
	}

	s := Snapshot{
		IsIOS:            IsIOS(env),
		IsSafari:         IsSafari(env),
		IsPWA:            IsPWA(env),
		Permission:       perm,
		NotificationAPI:  env.NotificationAPI,
		PushAPI:          env.ServiceWorkerAPI && env.PushManagerAPI,
		IOSPushSupported: IOSPushSupported(env),
	}
	s.PushSupported = s.PushAPI && s.NotificationAPI && (!s.IsIOS || s.IOSPushSupported)
	return s
}

// FromUserAgent classifies a request by its User-Agent header alone. API
// availability is unknown server-side and therefore reported as absent.
func FromUserAgent(ua string) Snapshot {
	return Detect(Env{UserAgent: ua})
}

// NeedsPermissionHint reports platforms whose live permission read is unreliable.
func (s Snapshot) NeedsPermissionHint() bool {
	return s.IsSafari || s.IsIOS
}

// DeviceInfo renders the snapshot into the stored device description.
func (s Snapshot) DeviceInfo(ua string) model.DeviceInfo {
	return model.DeviceInfo{
		IsSafari:  s.IsSafari,
		IsIOS:     s.IsIOS,
		UserAgent: ua,
	}
}

type ctxKey struct{}

// WithSnapshot stores s on ctx.
func WithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the snapshot stored on ctx, if any.
func FromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(ctxKey{}).(Snapshot)
	return s, ok
}
