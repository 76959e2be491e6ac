package guard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iap-bridge/internal/domain"
)

func TestInBundle(t *testing.T) {
	accepted := []string{
		"/Applications/Example.app/Contents/MacOS/Example",
		"/Users/dev/build/Anything Else.app/Contents/MacOS/runner",
		"relative/Tool.app/Contents/MacOS/tool",
		"/Volumes/build/.app/Contents/MacOS/tool",
	}
	for _, exe := range accepted {
		assert.True(t, InBundle(exe), exe)
	}

	rejected := []string{
		"/Users/dev/project/target/debug/example",
		"/Applications/Example/Contents/MacOS/Example",
		"/Applications/Example.app/Contents/Resources/Example",
		"/Applications/Example.app/MacOS/Example",
		"/Contents/MacOS/Example",
		"Example",
	}
	for _, exe := range rejected {
		assert.False(t, InBundle(exe), exe)
	}
}

func TestBundleGuardCheck(t *testing.T) {
	ok := NewBundleGuardWithExecutable(func() (string, error) {
		return "/Applications/Shop.app/Contents/MacOS/Shop", nil
	})
	assert.NoError(t, ok.Check())

	loose := NewBundleGuardWithExecutable(func() (string, error) {
		return "/home/dev/shop/target/debug/shop", nil
	})
	err := loose.Check()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEnvironmentInvalid)

	broken := NewBundleGuardWithExecutable(func() (string, error) {
		return "", errors.New("no such process")
	})
	err = broken.Check()
	assert.ErrorIs(t, err, domain.ErrEnvironmentInvalid)
}

func TestBundleGuardChecksEveryCall(t *testing.T) {
	path := "/Applications/Shop.app/Contents/MacOS/Shop"
	g := NewBundleGuardWithExecutable(func() (string, error) { return path, nil })
	require.NoError(t, g.Check())

	path = "/tmp/shop"
	assert.Error(t, g.Check())
}
