package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	statusadapter "github.com/vayureader/vayu-cli/internal/adapters/render/status"
	"github.com/vayureader/vayu-cli/internal/domain"
)

const expiringSoonWindow = 15 * time.Minute

type statusOutput struct {
	State            string       `json:"state"`
	User             *domain.User `json:"user,omitempty"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	RemainingSeconds *int64       `json:"remaining_seconds,omitempty"`
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session := app.currentSession(cmd.Context())
			return writeStatusOutput(cmd, app, session, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")

	return cmd
}

func writeStatusOutput(cmd *cobra.Command, app *app, session domain.Session, asJSON bool) error {
	now := app.now()

	if asJSON {
		out := statusOutput{
			State:     session.StateName(),
			User:      session.User(),
			ExpiresAt: session.ExpiresAt(),
		}
		if remaining, ok := session.Remaining(now); ok {
			seconds := int64(remaining / time.Second)
			out.RemainingSeconds = &seconds
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	rendered, err := app.statusRenderer(session, statusadapter.RenderOptions{
		Now:            now,
		ExpiringWithin: expiringSoonWindow,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
