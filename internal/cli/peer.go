package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/ir"
)

// PeerOptions holds flags for peer add.
type PeerOptions struct {
	*RootOptions
	Name      string
	NodeID    string
	VerifyKey string
	Route     string
}

// PeerList renders known peers one per line.
type PeerList []ir.Node

func (l PeerList) String() string {
	if len(l) == 0 {
		return "No peers."
	}
	var b strings.Builder
	for i, p := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s", p.Name, p.ID, p.VerifyKey, p.Route)
	}
	return b.String()
}

// NewPeerCommand creates the peer command group.
func NewPeerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage the nodes this node can dial",
		Long: `Manage the peer directory. A project leader can only broadcast to
members registered here, and only registered peers may open sessions to
this node.`,
	}
	cmd.AddCommand(newPeerAddCommand(rootOpts))
	cmd.AddCommand(newPeerListCommand(rootOpts))
	return cmd
}

func newPeerAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or update a peer",
		Long: `Register a peer by verify key. Adding a key that is already known
replaces its name, id and route.

Example:
  syncbridge peer add --db ./alpha.db --peer-name beta --peer-id node-beta \
    --verify-key 3b6a27bc... --peer-route ws://beta:8080/sessions`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeerAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "peer-name", "", "peer name (required)")
	cmd.Flags().StringVar(&opts.NodeID, "peer-id", "", "peer node id (defaults to node-<name>)")
	cmd.Flags().StringVar(&opts.VerifyKey, "verify-key", "", "peer verify key, hex (required)")
	cmd.Flags().StringVar(&opts.Route, "peer-route", "", "websocket route the peer listens on")
	_ = cmd.MarkFlagRequired("peer-name")
	_ = cmd.MarkFlagRequired("verify-key")

	return cmd
}

func runPeerAdd(opts *PeerOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	key, err := ir.ParseIdentity(opts.VerifyKey)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --verify-key", err)
	}
	peer := ir.Node{Name: opts.Name, ID: opts.NodeID, VerifyKey: key, Route: opts.Route}
	if peer.ID == "" {
		peer.ID = "node-" + peer.Name
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "open database", err)
	}
	defer st.Close()

	if err := st.PutPeer(cmd.Context(), peer); err != nil {
		return f.Fail(ExitFailure, ErrCodeStore, "register peer", err)
	}
	return f.Success(PeerList{peer})
}

func newPeerListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered peers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			st, err := openStore(rootOpts)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "open database", err)
			}
			defer st.Close()

			peers, err := st.ListPeers(cmd.Context())
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeStore, "list peers", err)
			}
			return f.Success(PeerList(peers))
		},
	}
}
