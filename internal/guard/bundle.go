// Package guard runs the environment preflight checks a backend needs before
// it may touch its native purchasing framework.
package guard

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
)

// BundleGuard verifies the process runs from an installed application bundle:
// <name>.app/Contents/MacOS/<executable>. It holds no state and checks on
// every call.
type BundleGuard struct {
	executable func() (string, error)
}

func NewBundleGuard() *BundleGuard {
	return &BundleGuard{executable: os.Executable}
}

// NewBundleGuardWithExecutable uses exe to resolve the current executable path.
func NewBundleGuardWithExecutable(exe func() (string, error)) *BundleGuard {
	return &BundleGuard{executable: exe}
}

func (g *BundleGuard) Check() error {
	exe, err := g.executable()
	if err != nil {
		log.WithError(err).Warn("Could not resolve executable path")
		return domain.Wrap(domain.KindEnvironmentInvalid, "", *domain.ErrEnvironmentInvalid.Message, err)
	}
	if !InBundle(exe) {
		log.WithField("executable", exe).Warn("Executable is not inside an application bundle")
		return domain.ErrEnvironmentInvalid
	}
	return nil
}

// InBundle reports whether exe sits at <bundle>.app/Contents/MacOS/<exe>,
// whatever the bundle is called.
func InBundle(exe string) bool {
	exe = filepath.Clean(exe)
	macos := filepath.Dir(exe)
	contents := filepath.Dir(macos)
	bundle := filepath.Dir(contents)
	if macos == exe || contents == macos || bundle == contents {
		return false
	}
	return filepath.Base(macos) == "MacOS" &&
		filepath.Base(contents) == "Contents" &&
		strings.HasSuffix(filepath.Base(bundle), ".app")
}
