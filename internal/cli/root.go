package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/config"
	"github.com/roach88/syncbridge/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Node flags. Empty values fall back to the config file.
	Database string
	KeyFile  string
	NodeName string
	NodeID   string
	Route    string

	// Config is loaded by the root command before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the syncbridge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "syncbridge",
		Version: ir.Version,
		Short:   "syncbridge - leader-ordered project logs and node state sync",
		Long: `syncbridge keeps a project's event log identical on every member node
by routing all writes through the project's leader, and reconciles the
object state of two nodes batch by batch.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(cmd, opts)
			return opts.loadConfig()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to syncbridge.yaml")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the node's SQLite database")
	cmd.PersistentFlags().StringVar(&opts.KeyFile, "key", "", "path to the node's signing key")
	cmd.PersistentFlags().StringVar(&opts.NodeName, "name", "", "node name shown to peers")
	cmd.PersistentFlags().StringVar(&opts.NodeID, "node-id", "", "node id matched against request targets")
	cmd.PersistentFlags().StringVar(&opts.Route, "route", "", "websocket route peers dial, e.g. ws://host:8080/sessions")

	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewPeerCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))
	cmd.AddCommand(NewNotificationsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// configureLogging installs a text slog handler on stderr, at debug level
// when --verbose is set.
func configureLogging(cmd *cobra.Command, opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig reads --config, if given, and fills node flags left empty.
func (o *RootOptions) loadConfig() error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}
	o.Config = cfg

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&o.Database, cfg.Database)
	fill(&o.KeyFile, cfg.KeyFile)
	fill(&o.NodeName, cfg.Node.Name)
	fill(&o.NodeID, cfg.Node.ID)
	fill(&o.Route, cfg.Node.Route)
	return nil
}

// config returns the loaded config, or the defaults when a command runs
// without the root command.
func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		return config.Default()
	}
	return o.Config
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
