// internal/app/auth_service.go
package app

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/session"
)

const minPasswordLen = 6

var (
	ErrPasswordTooShort      = errors.New("password must be at least 6 characters")
	ErrNameRequired          = errors.New("name is required")
	ErrNoPendingVerification = errors.New("no registration is waiting for verification")
	ErrCodeRequired          = errors.New("verification code is required")
	ErrPushTokenRequired     = errors.New("push token is required")
)

type AuthAPI interface {
	Login(ctx context.Context, phone, password string) (*session.Session, error)
	Register(ctx context.Context, name, phone, password string) error
	VerifyLogin(ctx context.Context, phone, password, code string) (*session.Session, error)
	SetNotificationsEnabled(ctx context.Context, enabled bool) error
	RegisterPushToken(ctx context.Context, token string) error
	ClearPushToken(ctx context.Context) error
}

// Account is what the page shows about the signed-in user.
type Account struct {
	LoggedIn      bool          `json:"loggedIn"`
	User          *session.User `json:"user,omitempty"`
	DisplayPhone  string        `json:"displayPhone,omitempty"`
	PhoneVerified bool          `json:"phoneVerified"`
	PendingPhone  string        `json:"pendingPhone,omitempty"`
}

// AuthService logs the agent in and out on behalf of the page.
type AuthService struct {
	api   AuthAPI
	store *SessionStore
	log   *logrus.Entry
}

func NewAuthService(authAPI AuthAPI, store *SessionStore, log *logrus.Entry) *AuthService {
	return &AuthService{api: authAPI, store: store, log: log}
}

// Login normalizes the phone, authenticates and persists the session.
func (s *AuthService) Login(ctx context.Context, phone, password string) (*session.Session, error) {
	normalized, err := session.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	sess, err := s.api.Login(ctx, normalized, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", sess.User.ID).Info("Logged in")
	return sess, nil
}

// Logout unregisters the push token when it can and always clears the
// local session.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.api.ClearPushToken(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear push token on logout")
	}
	return s.store.Clear(ctx)
}

// Register creates the account and keeps the credentials until the phone
// is confirmed with Verify.
func (s *AuthService) Register(ctx context.Context, name, phone, password string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	normalized, err := session.NormalizePhone(phone)
	if err != nil {
		return err
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return ErrPasswordTooShort
	}
	if err := s.api.Register(ctx, name, normalized, password); err != nil {
		return err
	}
	pending := session.PendingVerification{Phone: normalized, Password: password, Name: name}
	if err := s.store.SavePendingVerification(ctx, pending); err != nil {
		return err
	}
	s.log.WithField("phone", session.FormatPhone(normalized)).Info("Registration waiting for verification")
	return nil
}

// Verify confirms the pending registration with the code sent to the
// phone and signs the user in.
func (s *AuthService) Verify(ctx context.Context, code string) (*session.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeRequired
	}
	pending, ok, err := s.store.PendingVerification(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPendingVerification
	}

	sess, err := s.api.VerifyLogin(ctx, pending.Phone, pending.Password, code)
	if err != nil {
		return nil, err
	}
	if sess.User.Name == "" {
		sess.User.Name = pending.Name
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.store.ClearPendingVerification(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear pending registration")
	}
	if err := s.store.MarkPhoneVerified(ctx, pending.Phone); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", sess.User.ID).Info("Phone verified, logged in")
	return sess, nil
}

func (s *AuthService) Account(ctx context.Context) (Account, error) {
	var acc Account
	if pending, ok, err := s.store.PendingVerification(ctx); err != nil {
		return acc, err
	} else if ok {
		acc.PendingPhone = session.FormatPhone(pending.Phone)
	}
	_, acc.PhoneVerified = s.store.PhoneVerified(ctx)

	sess, err := s.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return acc, nil
	}
	if err != nil {
		return acc, err
	}
	acc.LoggedIn = sess.AuthToken != ""
	acc.User = &sess.User
	acc.DisplayPhone = session.FormatPhone(sess.User.Phone)
	return acc, nil
}

func (s *AuthService) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	if err := s.api.SetNotificationsEnabled(ctx, enabled); err != nil {
		return err
	}
	s.log.WithField("enabled", enabled).Info("Notification preference updated")
	return nil
}

// RegisterPushToken hands the device push token to the backend.
func (s *AuthService) RegisterPushToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrPushTokenRequired
	}
	return s.api.RegisterPushToken(ctx, token)
}

func (s *AuthService) DismissInstall(ctx context.Context, variant string) error {
	return s.store.DismissInstall(ctx, variant)
}

func (s *AuthService) InstallDismissed(ctx context.Context, variant string) bool {
	return s.store.InstallDismissed(ctx, variant)
}
