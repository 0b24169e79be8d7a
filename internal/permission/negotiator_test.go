package permission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-push-backend/internal/capability"
)

// fakeRuntime is a scripted notification permission surface.
type fakeRuntime struct {
	api     bool
	current capability.Permission
	result  capability.Permission
	err     error
	prompts int
}

func (f *fakeRuntime) NotificationAPI() bool { return f.api }

func (f *fakeRuntime) Permission() capability.Permission { return f.current }

func (f *fakeRuntime) RequestPermission(ctx context.Context) (capability.Permission, error) {
	f.prompts++
	if f.err != nil {
		return "", f.err
	}
	f.current = f.result
	return f.result, nil
}

type countingInstructor struct {
	shown int
}

func (c *countingInstructor) ShowIOSSettingsHint(ctx context.Context) { c.shown++ }

var (
	safariSnap = capability.Snapshot{IsSafari: true}
	iosSnap    = capability.Snapshot{IsSafari: true, IsIOS: true}
	chromeSnap = capability.Snapshot{}
	gestureCtx = WithUserGesture(context.Background())
)

func TestRequestPermission_NoAPI(t *testing.T) {
	rt := &fakeRuntime{api: false}
	n := NewNegotiator(rt, NewMemoryHintStore(), chromeSnap, nil)

	assert.False(t, n.RequestPermission(gestureCtx))
	assert.Equal(t, 0, rt.prompts)
}

func TestRequestPermission_RequiresGesture(t *testing.T) {
	rt := &fakeRuntime{api: true, result: capability.PermissionGranted}
	n := NewNegotiator(rt, NewMemoryHintStore(), chromeSnap, nil)

	assert.False(t, n.RequestPermission(context.Background()))
	assert.Equal(t, 0, rt.prompts)
}

func TestRequestPermission_GrantedPersistsHint(t *testing.T) {
	rt := &fakeRuntime{api: true, result: capability.PermissionGranted}
	hints := NewMemoryHintStore()
	n := NewNegotiator(rt, hints, safariSnap, nil)

	assert.True(t, n.RequestPermission(gestureCtx))
	assert.Equal(t, 1, rt.prompts)

	v, ok := hints.Get(HintKey)
	assert.True(t, ok)
	assert.Equal(t, HintGranted, v)
}

func TestRequestPermission_DeniedAndDefault(t *testing.T) {
	for _, result := range []capability.Permission{capability.PermissionDenied, capability.PermissionDefault} {
		t.Run(string(result), func(t *testing.T) {
			rt := &fakeRuntime{api: true, result: result}
			hints := NewMemoryHintStore()
			n := NewNegotiator(rt, hints, safariSnap, nil)

			assert.False(t, n.RequestPermission(gestureCtx))
			assert.Equal(t, 1, rt.prompts, "exactly one prompt, no retries")
			_, ok := hints.Get(HintKey)
			assert.False(t, ok)
		})
	}
}

func TestRequestPermission_PromptError(t *testing.T) {
	rt := &fakeRuntime{api: true, err: errors.New("prompt dismissed")}
	n := NewNegotiator(rt, NewMemoryHintStore(), chromeSnap, nil)

	assert.False(t, n.RequestPermission(gestureCtx))
	assert.Equal(t, 1, rt.prompts)
}

func TestRequestPermission_IOSInstructionShownOnce(t *testing.T) {
	rt := &fakeRuntime{api: true, result: capability.PermissionGranted}
	instructor := &countingInstructor{}
	n := NewNegotiator(rt, NewMemoryHintStore(), iosSnap, instructor)

	assert.True(t, n.RequestPermission(gestureCtx))
	assert.True(t, n.RequestPermission(gestureCtx))
	assert.Equal(t, 2, rt.prompts)
	assert.Equal(t, 1, instructor.shown)
}

func TestRequestPermission_NoInstructionOffIOS(t *testing.T) {
	rt := &fakeRuntime{api: true, result: capability.PermissionGranted}
	instructor := &countingInstructor{}
	n := NewNegotiator(rt, NewMemoryHintStore(), safariSnap, instructor)

	assert.True(t, n.RequestPermission(gestureCtx))
	assert.Equal(t, 0, instructor.shown)
}

func TestHasPermission_SafariTrustsHint(t *testing.T) {
	rt := &fakeRuntime{api: true, current: capability.PermissionDefault}
	hints := NewMemoryHintStore()
	require.NoError(t, hints.Set(HintKey, HintGranted))

	n := NewNegotiator(rt, hints, safariSnap, nil)
	assert.True(t, n.HasPermission())
}

func TestHasPermission_SafariWithoutHint(t *testing.T) {
	rt := &fakeRuntime{api: true, current: capability.PermissionDefault}
	n := NewNegotiator(rt, NewMemoryHintStore(), iosSnap, nil)
	assert.False(t, n.HasPermission())
}

func TestHasPermission_OtherPlatformsIgnoreHint(t *testing.T) {
	rt := &fakeRuntime{api: true, current: capability.PermissionDefault}
	hints := NewMemoryHintStore()
	require.NoError(t, hints.Set(HintKey, HintGranted))

	n := NewNegotiator(rt, hints, chromeSnap, nil)
	assert.False(t, n.HasPermission())

	rt.current = capability.PermissionGranted
	assert.True(t, n.HasPermission())
}

func TestFileHintStore_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.gob")

	first, err := NewFileHintStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(HintKey, HintGranted))

	second, err := NewFileHintStore(path)
	require.NoError(t, err)
	v, ok := second.Get(HintKey)
	assert.True(t, ok)
	assert.Equal(t, HintGranted, v)
}
