package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(14)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
)

var boxStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#334155")).
	Padding(0, 1)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, ok := application.Store.Session()
		ok = ok && application.Store.Authenticated()
		view := statusView(sess, ok, application.Store.Clock().Now())
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), view)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatStatusHuman(view))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type sessionStatus struct {
	Authenticated  bool              `json:"authenticated"`
	UserID         string            `json:"user_id,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	Roles          []string          `json:"roles,omitempty"`
	Issued         time.Time         `json:"issued,omitzero"`
	Expires        time.Time         `json:"expires,omitzero"`
	ExpiresIn      string            `json:"expires_in,omitempty"`
	ServerTimeDiff int64             `json:"server_time_diff_ms,omitempty"`
	Databases      map[string]string `json:"databases,omitempty"`
}

func statusView(sess session.Session, ok bool, now time.Time) sessionStatus {
	if !ok {
		return sessionStatus{}
	}
	expires := time.UnixMilli(sess.Expires)
	return sessionStatus{
		Authenticated:  true,
		UserID:         sess.UserID,
		Provider:       sess.Provider,
		Roles:          sess.Roles,
		Issued:         time.UnixMilli(sess.Issued).UTC(),
		Expires:        expires.UTC(),
		ExpiresIn:      expires.Sub(now.Add(time.Duration(sess.ServerTimeDiff) * time.Millisecond)).Round(time.Second).String(),
		ServerTimeDiff: sess.ServerTimeDiff,
		Databases:      sess.UserDBs,
	}
}

func formatStatusHuman(s sessionStatus) string {
	if !s.Authenticated {
		return warnStyle.Render("Not signed in.")
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	rows := []string{
		titleStyle.Render("Signed in as " + s.UserID),
		"",
		row("Provider", orDash(s.Provider)),
		row("Roles", orDash(strings.Join(s.Roles, ", "))),
		row("Issued", s.Issued.Format(time.RFC3339)),
		row("Expires", s.Expires.Format(time.RFC3339)+" (in "+s.ExpiresIn+")"),
	}
	if s.ServerTimeDiff != 0 {
		rows = append(rows, row("Clock skew", fmt.Sprintf("%dms", s.ServerTimeDiff)))
	}
	for _, name := range slices.Sorted(maps.Keys(s.Databases)) {
		rows = append(rows, row("DB "+name, s.Databases[name]))
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
