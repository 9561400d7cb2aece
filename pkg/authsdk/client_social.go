package authsdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/sessionkit/pkg/popup"
)

// SocialAuth signs in through provider's OAuth page in a popup and blocks
// until the flow settles or ctx is done.
func (c *Client) SocialAuth(ctx context.Context, provider string) (popup.Result, error) {
	if err := c.checkProvider(provider); err != nil {
		return popup.Result{}, err
	}

	f, err := c.coordinator.Start(ctx, c.url(provider), popup.LoginOptions(provider))
	if err != nil {
		return popup.Result{}, err
	}
	return f.Wait(ctx)
}

// TokenSocialAuth signs in with an access token already obtained from
// provider.
func (c *Client) TokenSocialAuth(ctx context.Context, provider, accessToken string) (AuthResult, error) {
	if err := c.checkProvider(provider); err != nil {
		return AuthResult{}, err
	}
	return c.authCall(ctx, http.MethodPost, provider+"/token", accessTokenRequest{AccessToken: accessToken})
}

// TokenLink links provider to the signed-in account with an access token
// already obtained from it.
func (c *Client) TokenLink(ctx context.Context, provider, accessToken string) (Reply, error) {
	if err := c.checkProvider(provider); err != nil {
		return Reply{}, err
	}

	var reply Reply
	err := c.call(ctx, http.MethodPost, "link/"+provider+"/token", accessTokenRequest{AccessToken: accessToken}, &reply)
	return reply, err
}

// Link links provider to the signed-in account through a popup. The popup
// cannot send headers, so the bearer credential travels in the query.
func (c *Client) Link(ctx context.Context, provider string) (popup.Result, error) {
	if err := c.checkProvider(provider); err != nil {
		return popup.Result{}, err
	}
	sess, err := c.requireAuth()
	if err != nil {
		return popup.Result{}, err
	}

	target := c.url("link/"+provider) + "?" + url.Values{"bearer_token": {sess.Bearer()}}.Encode()
	f, err := c.coordinator.Start(ctx, target, popup.LinkOptions(provider))
	if err != nil {
		return popup.Result{}, err
	}
	return f.Wait(ctx)
}

// Unlink removes provider from the signed-in account.
func (c *Client) Unlink(ctx context.Context, provider string) (Reply, error) {
	if err := c.checkProvider(provider); err != nil {
		return Reply{}, err
	}
	if _, err := c.requireAuth(); err != nil {
		return Reply{}, err
	}

	var reply Reply
	err := c.call(ctx, http.MethodPost, "unlink/"+provider, nil, &reply)
	return reply, err
}
