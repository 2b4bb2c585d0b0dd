package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/ir"
)

// VersionView is printed by the version command.
type VersionView struct {
	Version string `json:"version"`
	Schema  int    `json:"schema"`
}

func (v VersionView) String() string {
	return fmt.Sprintf("syncbridge %s (schema %d)", v.Version, v.Schema)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the release and database schema version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.formatter(cmd).Success(VersionView{Version: ir.Version, Schema: ir.SchemaVersion})
		},
	}
}
