package inject

import "errors"

// Injection failures split into four classes with different propagation
// rules. Tab-gone and access-denied are races outside the caller's control
// (tab closed mid-flight, chrome:// page, devtools target torn down): they
// are swallowed and logged, never surfaced. Invalid CSS and any residual
// failure surface only on user-initiated paths; the navigation watcher logs
// everything and moves on.

// ErrTabGone marks a target that no longer exists or detached mid-call.
var ErrTabGone = errors.New("inject: tab gone")

// ErrAccessDenied marks a page the browser refuses to script (restricted
// scheme, opaque origin, devtools-protected target).
var ErrAccessDenied = errors.New("inject: access denied")

// ErrInvalidCSS marks CSS text that fails to parse as a stylesheet.
var ErrInvalidCSS = errors.New("inject: invalid css")

// ErrInjectionFailed marks any other injection failure.
var ErrInjectionFailed = errors.New("inject: injection failed")

// Swallowable reports whether err belongs to a class that background and
// best-effort paths absorb silently.
func Swallowable(err error) bool {
	return errors.Is(err, ErrTabGone) || errors.Is(err, ErrAccessDenied)
}
