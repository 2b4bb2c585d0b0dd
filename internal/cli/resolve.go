package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/project"
	"github.com/roach88/syncbridge/internal/resolve"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Decision     string
	SharePrivate bool
	Apply        bool
	Session      string
}

// DecisionView is one resolved object.
type DecisionView struct {
	ObjectID   string      `json:"object_id"`
	ObjectType string      `json:"object_type"`
	Status     diff.Status `json:"status"`
	Side       string      `json:"side"`
	Mockify    bool        `json:"mockify"`
	Grants     []string    `json:"grants,omitempty"`
}

// ResolveSummary is printed after resolution.
type ResolveSummary struct {
	Session   string         `json:"session,omitempty"`
	Applied   bool           `json:"applied"`
	Decisions []DecisionView `json:"decisions"`
	Mockified []string       `json:"mockified"`
	Grants    int            `json:"grants"`
}

func (s ResolveSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d objects resolved, %d grants, %d mockified", len(s.Decisions), s.Grants, len(s.Mockified))
	if s.Applied {
		fmt.Fprintf(&b, "\napplied low side as session %s", s.Session)
	}
	return b.String()
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <low.yaml> <high.yaml>",
		Short: "Decide which side wins each changed batch",
		Long: `Diff the low and high snapshots and decide, batch by batch, which side's
objects win. Without --decision each batch is asked for on the terminal.

Private results need a governing user code. Unless --share-private is set,
the data owner is asked which private results to share; anything not shared
is synced as a mock. With --apply the low side's decisions and grants are
written to the node database.

Example:
  syncbridge resolve low.yaml high.yaml
  syncbridge resolve low.yaml high.yaml --decision high --share-private \
    --apply --db ./low.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Decision, "decision", "", "side that wins every batch (low|high)")
	cmd.Flags().BoolVar(&opts.SharePrivate, "share-private", false, "share every private result without asking")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "write the low side's decisions to --db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id recorded with applied decisions (generated when empty)")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command, lowPath, highPath string) error {
	f := opts.formatter(cmd)

	resolveOpts := resolve.Options{SharePrivateObjects: opts.SharePrivate}
	if opts.Decision != "" {
		side, err := resolve.ParseSide(opts.Decision)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --decision", err)
		}
		resolveOpts.Decision = &side
	}

	in := cmd.InOrStdin()
	if resolveOpts.Decision == nil && !isInteractive(in) {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput,
			"stdin is not a terminal: pass --decision to resolve without prompting", nil)
	}

	// Prompts and progress stay off stdout when it carries JSON.
	progress := cmd.OutOrStdout()
	if opts.Format == "json" {
		progress = cmd.ErrOrStderr()
	}
	resolveOpts.Out = progress
	resolveOpts.Provider = resolve.NewPrompter(in, progress)

	nd, err := loadDiff(f, lowPath, highPath)
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), "compare snapshots", err)
	}

	low, _, err := resolve.Resolve(cmd.Context(), nd, resolveOpts)
	if err != nil {
		return f.Fail(ExitFailure, errorCode(err), "resolve", err)
	}

	summary := summarize(low)
	if opts.Apply {
		session := opts.Session
		if session == "" {
			session = project.ULIDGenerator{}.Generate()
		}
		st, err := openStore(opts.RootOptions)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "open database", err)
		}
		defer st.Close()
		if err := low.Apply(cmd.Context(), st, session); err != nil {
			return f.Fail(ExitFailure, ErrCodeStore, "apply decisions", err)
		}
		summary.Session = session
		summary.Applied = true
	}
	return f.Success(summary)
}

// isInteractive reports whether in can answer prompts. Readers that are not
// files, such as a test's buffer, are taken as scripted input.
func isInteractive(in io.Reader) bool {
	file, ok := in.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(file.Fd()))
}

func summarize(state *resolve.ResolvedSyncState) ResolveSummary {
	s := ResolveSummary{
		Decisions: make([]DecisionView, len(state.Decisions)),
		Mockified: state.MockifiedIDs(),
		Grants:    len(state.NewPermissions()),
	}
	for i, d := range state.Decisions {
		v := DecisionView{
			ObjectID:   d.Diff.ObjectID,
			ObjectType: d.Diff.ObjectType,
			Status:     d.Diff.Status,
			Side:       string(d.Decision),
			Mockify:    d.Mockify,
		}
		for _, g := range d.NewPermissionsLowSide {
			v.Grants = append(v.Grants, g.String())
		}
		s.Decisions[i] = v
	}
	return s
}
