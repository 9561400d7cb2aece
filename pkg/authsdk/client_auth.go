package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

// Login signs in with a username and password. On failure any existing
// session is discarded.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return session.Session{}, ErrMissingCredentials
	}

	var sess session.Session
	if err := c.call(ctx, http.MethodPost, "login", creds, &sess); err != nil {
		if derr := c.store.DeleteSession(); derr != nil {
			c.logger.Warn("failed to clear session after login failure", "error", derr)
		}
		c.logger.Info("login failed", "username", creds.Username, "error", err)
		return session.Session{}, err
	}

	return c.establish(sess)
}

// Register creates an account. When the service signs the new user in
// straight away the returned session is stored.
func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	return c.authCall(ctx, http.MethodPost, "register", reg)
}

// Logout ends the session on the server and locally. The local session is
// removed and a logout event emitted even when the server call fails; that
// failure is still returned. An empty msg means "Logged out".
func (c *Client) Logout(ctx context.Context, msg string) error {
	err := c.call(ctx, http.MethodPost, "logout", struct{}{}, nil)
	c.endSession(msg)
	return err
}

// LogoutAll ends every session of the user, on every device.
func (c *Client) LogoutAll(ctx context.Context, msg string) error {
	err := c.call(ctx, http.MethodPost, "logout-all", struct{}{}, nil)
	c.endSession(msg)
	return err
}

// LogoutOthers ends every session of the user except this one.
func (c *Client) LogoutOthers(ctx context.Context) (Reply, error) {
	var reply Reply
	err := c.call(ctx, http.MethodPost, "logout-others", struct{}{}, &reply)
	return reply, err
}

// Refresh renews the session token. Concurrent calls share one request.
func (c *Client) Refresh(ctx context.Context) (session.Session, error) {
	v, err, shared := c.refreshGroup.Do("refresh", func() (any, error) {
		sess, err := c.refresh(ctx)
		if err != nil && !errors.Is(err, session.ErrSessionChanged) {
			c.metrics.refreshFailed()
		}
		return sess, err
	})
	if shared {
		c.logger.Debug("joined in-flight session refresh")
	}
	if err != nil {
		return session.Session{}, err
	}
	return v.(session.Session), nil
}

func (c *Client) refresh(ctx context.Context) (session.Session, error) {
	cur, ok := c.store.Session()
	if !ok {
		return session.Session{}, ErrAuthenticationRequired
	}

	var res refreshResponse
	if err := c.call(ctx, http.MethodPost, "refresh", struct{}{}, &res); err != nil {
		return session.Session{}, err
	}
	if res.Token == "" || res.Expires == 0 {
		return session.Session{}, ErrInvalidRefreshResponse
	}

	next := cur.Clone()
	next.Token = res.Token
	next.Expires = res.Expires
	// The session may have ended or been replaced while the request was out.
	if err := c.store.ReplaceIfCurrent(cur, next); err != nil {
		return session.Session{}, err
	}
	c.store.Events().EmitRefresh(next)

	c.logger.Debug("session token refreshed",
		"user_id", next.UserID,
		"token_fp", cryptox.FingerprintToken(next.Token),
		"expires", next.Expires,
	)
	return next, nil
}

// establish stamps sess with the server clock difference, stores it and
// announces the login.
func (c *Client) establish(sess session.Session) (session.Session, error) {
	sess.ServerTimeDiff = sess.Issued - clock.Millis(c.clock)
	if err := c.store.SetSession(sess); err != nil {
		return session.Session{}, fmt.Errorf("store session: %w", err)
	}
	c.store.Events().EmitLogin(sess)

	c.logger.Info("signed in",
		"user_id", sess.UserID,
		"token_fp", cryptox.FingerprintToken(sess.Token),
		"server_time_diff_ms", sess.ServerTimeDiff,
	)
	return sess, nil
}

// authCall is used by endpoints that answer either with an acknowledgement
// or with a new session.
func (c *Client) authCall(ctx context.Context, method, path string, in any) (AuthResult, error) {
	resp, err := c.doRequest(ctx, method, path, in)
	if err != nil {
		return AuthResult{}, err
	}
	body, err := readBody(resp)
	if err != nil {
		return AuthResult{}, err
	}

	var result AuthResult
	if err := decodeJSON(body, &result.Reply); err != nil {
		return AuthResult{}, err
	}

	var sess session.Session
	if err := decodeJSON(body, &sess); err != nil {
		return AuthResult{}, err
	}
	if sess.UserID == "" || sess.Token == "" {
		return result, nil
	}

	stored, err := c.establish(sess)
	if err != nil {
		return result, err
	}
	result.Session = &stored
	return result, nil
}

func (c *Client) endSession(msg string) {
	if msg == "" {
		msg = session.ReasonLoggedOut
	}
	if err := c.store.DeleteSession(); err != nil {
		c.logger.Warn("failed to clear session", "error", err)
	}
	c.store.Events().EmitLogout(msg)
}
