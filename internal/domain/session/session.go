// internal/domain/session/session.go
package session

import "errors"

// Storage keys used by the page and the agent. The names are shared with the
// web client, so they must not change.
const (
	KeyToken               = "zvit_token"
	KeyUser                = "zvit_user"
	KeyPendingPhone        = "zvit_pending_phone"
	KeyPendingPassword     = "zvit_pending_password"
	KeyPendingName         = "zvit_pending_name"
	KeyPhoneVerified       = "zvit_phone_verified"
	KeyInstallDismissed    = "zvit_install_dismissed"
	KeyUrgentReminders     = "zvit_urgent_reminders"
	KeyGroups              = "zvit_groups"
	KeySyncTags            = "zvit_sync_tags"
	installDismissedPrefix = KeyInstallDismissed + "_"
)

// ErrNoSession is returned when no auth token is stored.
var ErrNoSession = errors.New("no active session")

// User is the profile returned by the backend on login.
type User struct {
	ID    string `json:"userId"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Session is the authenticated state of the page.
type Session struct {
	AuthToken string `json:"authToken"`
	User      User   `json:"user"`
}

// PendingVerification holds the registration fields kept while the phone
// OTP is being confirmed.
type PendingVerification struct {
	Phone    string
	Password string
	Name     string
}

// InstallDismissedKey returns the storage key marking the install banner as
// dismissed. An empty variant is the generic banner.
func InstallDismissedKey(variant string) string {
	if variant == "" {
		return KeyInstallDismissed
	}
	return installDismissedPrefix + variant
}

// Mirrored reports whether a key must also be written to the cookie store.
func Mirrored(key string) bool {
	return key == KeyPhoneVerified
}
