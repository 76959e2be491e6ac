// Package platform picks the billing backend for the running target.
package platform

import (
	"runtime"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/backend"
	"iap-bridge/internal/backend/mobile"
	"iap-bridge/internal/backend/storekit"
	"iap-bridge/internal/backend/unsupported"
	"iap-bridge/internal/backend/winstore"
	"iap-bridge/internal/guard"
)

// Natives carries the native bindings a host links in. A binding left nil
// makes its target fall back to the unsupported backend.
type Natives struct {
	StoreContext winstore.ContextProvider
	Windows      winstore.WindowLocator
	StoreKit     storekit.Plugin
	Mobile       mobile.PluginHandle

	// Guard overrides the bundle check used in front of StoreKit.
	Guard       storekit.Guard
	PackageName string
	WindowLabel string
}

// Events is what backends need from the event bridge.
type Events interface {
	backend.EventSink
	storekit.Trigger
}

// Select returns the backend for goos.
func Select(goos string, n Natives, events Events) backend.Backend {
	var b backend.Backend
	switch goos {
	case "windows":
		if n.StoreContext != nil && n.Windows != nil {
			b = winstore.New(n.StoreContext, n.Windows, events, winstore.Config{
				WindowLabel: n.WindowLabel,
				PackageName: n.PackageName,
			})
		}
	case "darwin":
		if n.StoreKit != nil {
			g := n.Guard
			if g == nil {
				g = guard.NewBundleGuard()
			}
			b = storekit.New(n.StoreKit, g, events)
		}
	case "android", "ios":
		if n.Mobile != nil {
			b = mobile.New(n.Mobile)
		}
	}
	if b == nil {
		b = unsupported.New()
	}
	log.WithFields(log.Fields{
		"goos":    goos,
		"backend": backend.NameOf(b),
	}).Info("Selected purchase backend")
	return b
}

// Current selects the backend for the target this binary was built for.
func Current(n Natives, events Events) backend.Backend {
	return Select(runtime.GOOS, n, events)
}
