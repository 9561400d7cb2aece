/*
Package authsdk is the client for a SuperLogin-style token authentication
service. It drives the REST endpoints, keeps the session.Store in step with
their results and decorates outgoing HTTP requests with the session's bearer
credential.

# Client and Store

A Client always works on a session.Store. The store owns the session; the
client only changes it through SetSession, DeleteSession and the store's
events:

	store, err := session.New(session.Config{
		Origin:    "https://app.example.com",
		Providers: []string{"github", "google"},
	})
	if err != nil {
		return err
	}
	client := authsdk.New(store)

	sess, err := client.Login(ctx, authsdk.Credentials{Username: "superuser", Password: "superpass"})

# Authorization Transport

Every request sent through Client.HTTPClient passes the Transport. Requests to
hosts in the configured allow-list carry

	Authorization: Bearer <token>:<password>

and a 401 from one of those hosts while authenticated ends the session with a
"Session expired" logout event. Each request also gives the store a chance to
start a proactive refresh. The transport can decorate any other http.Client:

	api := &http.Client{Transport: authsdk.NewTransport(store, nil)}

# Social Login

SocialAuth and Link open a popup through the popup.Coordinator and block until
the flow settles or ctx is done:

	res, err := client.SocialAuth(ctx, "github")
	if errors.Is(err, popup.ErrCancelled) {
		// window closed by the user
	}

# Error Handling

Input problems are reported before any network I/O:

  - ErrMissingCredentials: Login without a username or password
  - ErrAuthenticationRequired: the operation needs a session
  - ErrInvalidToken: VerifyEmail without a token
  - *ProviderError: the provider is not configured (matches ErrProviderNotSupported)

Non-2xx responses become *APIError carrying the status code, the server's
error and message fields and any validation errors.
*/
package authsdk
