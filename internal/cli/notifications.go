package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/ir"
)

// NotificationList renders an inbox, oldest first.
type NotificationList []ir.Notification

func (l NotificationList) String() string {
	if len(l) == 0 {
		return "No notifications."
	}
	lines := make([]string, len(l))
	for i, n := range l {
		lines[i] = fmt.Sprintf("%s  %s  %s (from %s)", n.CreatedAt.Format(time.RFC3339), n.ProjectID, n.Subject, n.From.Short())
	}
	return strings.Join(lines, "\n")
}

// NewNotificationsCommand creates the notifications command.
func NewNotificationsCommand(rootOpts *RootOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show this node's inbox",
		Long: `Show notifications delivered to this node, such as the notice written
when a project request event names this node as its server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			var recipient ir.Identity
			if to != "" {
				id, err := ir.ParseIdentity(to)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --to", err)
				}
				recipient = id
			}

			n, err := openNode(rootOpts)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "open node", err)
			}
			defer n.Close()
			if recipient.IsZero() {
				recipient = n.self.VerifyKey
			}

			notes, err := n.store.ReadNotifications(cmd.Context(), recipient)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeStore, "read notifications", err)
			}
			return f.Success(NotificationList(notes))
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "read the inbox of this verify key instead (hex)")
	return cmd
}
