package popup

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

const maxCompletionBytes = 1 << 20

// completion is what the auth server's redirect target reports.
type completion struct {
	Error   string           `json:"error,omitempty"`
	Session *session.Session `json:"session,omitempty"`
	Link    string           `json:"link,omitempty"`
}

var closePage = template.Must(template.New("close").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{.Message}}</p>
<p>You can close this window.</p>
<script>window.close()</script>
</body>
</html>
`))

type page struct {
	Title   string
	Message string
}

// Handler returns the HTTP endpoint the popup lands on once the provider
// round trip is over. It accepts either a JSON POST body or GET query
// parameters named error, session (JSON) and link, hands them to c.Complete
// and renders a page asking the user to close the window.
func Handler(c *Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in completion

		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			in.Error = q.Get("error")
			in.Link = q.Get("link")
			if raw := q.Get("session"); raw != "" {
				var s session.Session
				if err := json.Unmarshal([]byte(raw), &s); err != nil {
					render(w, http.StatusBadRequest, page{Title: "Sign in failed", Message: "The server returned an unreadable session."})
					return
				}
				in.Session = &s
			}
		case http.MethodPost:
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCompletionBytes)).Decode(&in); err != nil {
				render(w, http.StatusBadRequest, page{Title: "Sign in failed", Message: "The server returned an unreadable response."})
				return
			}
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		var cause error
		if in.Error != "" {
			cause = &Error{Message: in.Error}
		}

		err := c.Complete(cause, in.Session, in.Link)
		switch {
		case errors.Is(err, ErrNoPendingFlow):
			render(w, http.StatusConflict, page{Title: "Nothing to complete", Message: "No sign in is in progress."})
		case err != nil:
			render(w, http.StatusInternalServerError, page{Title: "Sign in failed", Message: err.Error()})
		case cause != nil:
			render(w, http.StatusOK, page{Title: "Sign in failed", Message: in.Error})
		case in.Session != nil:
			render(w, http.StatusOK, page{Title: "Signed in", Message: "Signed in as " + in.Session.UserID + "."})
		case in.Link != "":
			render(w, http.StatusOK, page{Title: "Account linked", Message: LinkedMessage(in.Link)})
		default:
			render(w, http.StatusOK, page{Title: "Sign in failed", Message: ErrEmptyCompletion.Error()})
		}
	})
}

func render(w http.ResponseWriter, code int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = closePage.Execute(w, p)
}
