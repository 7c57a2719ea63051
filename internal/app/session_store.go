// internal/app/session_store.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/session"
	"zvit_agent/internal/domain/storage"
)

// SessionStore persists the page's session and small UI markers in local
// storage. Mirrored keys are also written to the cookie store and restored
// from it when local storage has lost them.
type SessionStore struct {
	local   storage.KeyValue
	cookies storage.KeyValue
	log     *logrus.Entry
}

func NewSessionStore(local, cookies storage.KeyValue, log *logrus.Entry) *SessionStore {
	return &SessionStore{local: local, cookies: cookies, log: log}
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	user, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}
	if err := s.local.Set(ctx, session.KeyToken, sess.AuthToken); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := s.local.Set(ctx, session.KeyUser, string(user)); err != nil {
		return fmt.Errorf("failed to store user profile: %w", err)
	}
	return nil
}

// Load returns the stored session, or session.ErrNoSession.
func (s *SessionStore) Load(ctx context.Context) (*session.Session, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	sess := &session.Session{AuthToken: token}
	raw, err := s.local.Get(ctx, session.KeyUser)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return sess, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read user profile: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
		s.log.WithError(err).Warn("Stored user profile is corrupt, ignoring it")
	}
	return sess, nil
}

// Token returns the stored bearer token, or session.ErrNoSession.
func (s *SessionStore) Token(ctx context.Context) (string, error) {
	token, err := s.local.Get(ctx, session.KeyToken)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token == "") {
		return "", session.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// Clear removes the token and user profile.
func (s *SessionStore) Clear(ctx context.Context) error {
	for _, key := range []string{session.KeyToken, session.KeyUser} {
		if err := s.local.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	return nil
}

// Set writes a value, mirroring it to the cookie store when the key asks for it.
func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	if err := s.local.Set(ctx, key, value); err != nil {
		return err
	}
	if session.Mirrored(key) && s.cookies != nil {
		if err := s.cookies.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to mirror %s: %w", key, err)
		}
	}
	return nil
}

// Get reads a value. For mirrored keys a missing local copy is restored
// from the cookie store.
func (s *SessionStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.local.Get(ctx, key)
	if err == nil || !errors.Is(err, storage.ErrNotFound) || !session.Mirrored(key) || s.cookies == nil {
		return value, err
	}

	value, err = s.cookies.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.local.Set(ctx, key, value); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to restore key from cookie store")
	}
	return value, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if err := s.local.Delete(ctx, key); err != nil {
		return err
	}
	if session.Mirrored(key) && s.cookies != nil {
		return s.cookies.Delete(ctx, key)
	}
	return nil
}

func (s *SessionStore) SavePendingVerification(ctx context.Context, p session.PendingVerification) error {
	values := map[string]string{
		session.KeyPendingPhone:    p.Phone,
		session.KeyPendingPassword: p.Password,
		session.KeyPendingName:     p.Name,
	}
	for key, value := range values {
		if err := s.local.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}

// PendingVerification returns the registration kept during OTP
// confirmation. ok is false when no phone is pending.
func (s *SessionStore) PendingVerification(ctx context.Context) (p session.PendingVerification, ok bool, err error) {
	fields := []struct {
		key string
		dst *string
	}{
		{session.KeyPendingPhone, &p.Phone},
		{session.KeyPendingPassword, &p.Password},
		{session.KeyPendingName, &p.Name},
	}
	for _, f := range fields {
		v, err := s.local.Get(ctx, f.key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return p, false, err
		}
		*f.dst = v
	}
	return p, p.Phone != "", nil
}

func (s *SessionStore) ClearPendingVerification(ctx context.Context) error {
	for _, key := range []string{session.KeyPendingPhone, session.KeyPendingPassword, session.KeyPendingName} {
		if err := s.local.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// MarkPhoneVerified records the verified phone in both stores.
func (s *SessionStore) MarkPhoneVerified(ctx context.Context, phone string) error {
	return s.Set(ctx, session.KeyPhoneVerified, phone)
}

func (s *SessionStore) PhoneVerified(ctx context.Context) (string, bool) {
	v, err := s.Get(ctx, session.KeyPhoneVerified)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// DismissInstall hides an install banner. An empty variant is the generic one.
func (s *SessionStore) DismissInstall(ctx context.Context, variant string) error {
	return s.local.Set(ctx, session.InstallDismissedKey(variant), "true")
}

func (s *SessionStore) InstallDismissed(ctx context.Context, variant string) bool {
	v, err := s.local.Get(ctx, session.InstallDismissedKey(variant))
	return err == nil && v == "true"
}
