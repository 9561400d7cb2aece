package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// VerifyEmail confirms an email address with the token from the
// verification mail.
func (c *Client) VerifyEmail(ctx context.Context, token string) (Reply, error) {
	if token == "" {
		return Reply{}, ErrInvalidToken
	}

	var reply Reply
	err := c.call(ctx, http.MethodGet, "verify-email/"+url.PathEscape(token), nil, &reply)
	return reply, err
}

// ForgotPassword asks the service to mail a password reset token.
func (c *Client) ForgotPassword(ctx context.Context, email string) (Reply, error) {
	var reply Reply
	err := c.call(ctx, http.MethodPost, "forgot-password", emailRequest{Email: email}, &reply)
	return reply, err
}

// ResetPassword sets a new password with a reset token. The service may sign
// the user in as part of the reset.
func (c *Client) ResetPassword(ctx context.Context, form PasswordReset) (AuthResult, error) {
	return c.authCall(ctx, http.MethodPost, "password-reset", form)
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, form PasswordChange) (Reply, error) {
	if _, err := c.requireAuth(); err != nil {
		return Reply{}, err
	}

	var reply Reply
	err := c.call(ctx, http.MethodPost, "password-change", form, &reply)
	return reply, err
}

// ChangeEmail changes the signed-in user's email address.
func (c *Client) ChangeEmail(ctx context.Context, newEmail string) (Reply, error) {
	if _, err := c.requireAuth(); err != nil {
		return Reply{}, err
	}

	var reply Reply
	err := c.call(ctx, http.MethodPost, "change-email", changeEmailRequest{NewEmail: newEmail}, &reply)
	return reply, err
}

// ValidateUsername reports whether username is still available.
func (c *Client) ValidateUsername(ctx context.Context, username string) (bool, error) {
	return c.validate(ctx, "validate-username/"+url.PathEscape(username))
}

// ValidateEmail reports whether email is still available.
func (c *Client) ValidateEmail(ctx context.Context, email string) (bool, error) {
	return c.validate(ctx, "validate-email/"+url.PathEscape(email))
}

// validate maps 2xx to available and 409 to taken.
func (c *Client) validate(ctx context.Context, path string) (bool, error) {
	err := c.call(ctx, http.MethodGet, path, nil, nil)
	if err == nil {
		return true, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Conflict() {
		return false, nil
	}
	return false, err
}
