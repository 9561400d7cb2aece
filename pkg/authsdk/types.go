package authsdk

import "github.com/aussiebroadwan/sessionkit/pkg/session"

// Credentials are the username and password sent to login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the sign-up form.
type Registration struct {
	Name            string `json:"name,omitempty"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// PasswordReset completes a forgot-password flow with the emailed token.
type PasswordReset struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// PasswordChange changes the password of the signed-in user.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Reply is the acknowledgement body most endpoints return.
type Reply struct {
	OK      bool   `json:"ok,omitempty"`
	Success string `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// AuthResult is returned by operations that may sign the user in. Session is
// set when the response carried one and it was stored.
type AuthResult struct {
	Reply
	Session *session.Session
}

// refreshResponse holds the fields of a refresh reply that are merged into
// the current session.
type refreshResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

type accessTokenRequest struct {
	AccessToken string `json:"access_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type changeEmailRequest struct {
	NewEmail string `json:"newEmail"`
}
