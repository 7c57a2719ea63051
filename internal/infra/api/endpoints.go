package api

import (
	"context"
	"net/http"
	"net/url"

	"zvit_agent/internal/domain/group"
	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/domain/session"
)

// SubmitReport posts a report to its endpoint.
func (c *Client) SubmitReport(ctx context.Context, r report.Report) error {
	return c.Do(ctx, http.MethodPost, r.Endpoint(), r, nil)
}

// Groups lists the groups of the current user.
func (c *Client) Groups(ctx context.Context) ([]group.Group, error) {
	var groups []group.Group
	if err := c.Do(ctx, http.MethodGet, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *Client) Group(ctx context.Context, id string) (*group.Group, error) {
	var g group.Group
	if err := c.Do(ctx, http.MethodGet, "/groups/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

type loginResponse struct {
	UserID           string `json:"userId"`
	Token            string `json:"token"`
	EncryptedPayload string `json:"encryptedPayload"` // older backends send the token here
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
}

// Login exchanges credentials for a session. The phone must already be in
// E.164 form. The caller persists the session.
func (c *Client) Login(ctx context.Context, phone, password string) (*session.Session, error) {
	return c.login(ctx, map[string]string{"phone": phone, "password": password})
}

// Register creates an account. The backend answers by sending a
// verification code to the phone.
func (c *Client) Register(ctx context.Context, name, phone, password string) error {
	body := map[string]string{"name": name, "phone": phone, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/register", "", body, nil)
}

// VerifyLogin completes a registration: a login that carries the code sent
// to the phone.
func (c *Client) VerifyLogin(ctx context.Context, phone, password, code string) (*session.Session, error) {
	return c.login(ctx, map[string]string{"phone": phone, "password": password, "verificationCode": code})
}

func (c *Client) login(ctx context.Context, body map[string]string) (*session.Session, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	phone := body["phone"]
	return &session.Session{
		AuthToken: firstNonEmpty(resp.Token, resp.EncryptedPayload),
		User: session.User{
			ID:    resp.UserID,
			Name:  resp.Name,
			Phone: firstNonEmpty(resp.Phone, phone),
			Email: resp.Email,
		},
	}, nil
}

func (c *Client) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return c.Do(ctx, http.MethodPut, "/user/notifications", map[string]bool{"enabled": enabled}, nil)
}

// RegisterPushToken stores the device's push token on the backend.
func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	body := map[string]string{"fcmToken": token, "deviceType": "WEB"}
	return c.Do(ctx, http.MethodPost, "/auth/fcm-token", body, nil)
}

func (c *Client) ClearPushToken(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, "/auth/fcm-token", nil, nil)
}
