package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/ir"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Force bool
}

// KeygenResult is printed after a key is written.
type KeygenResult struct {
	Path      string `json:"path"`
	VerifyKey string `json:"verify_key"`
}

func (r KeygenResult) String() string {
	return fmt.Sprintf("wrote %s\nverify key: %s", r.Path, r.VerifyKey)
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the node's signing key",
		Long: `Generate an ed25519 signing key and write its seed, hex encoded, to the
file named by --key. The verify key printed afterwards is the node's
identity; give it to peers so they can register this node.

Example:
  syncbridge keygen --key ./alpha.key`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing key file")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.KeyFile == "" {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "no key path: pass --key or set key_file in the config file", nil)
	}
	if _, err := os.Stat(opts.KeyFile); err == nil && !opts.Force {
		return f.Fail(ExitCommandError, ErrCodeAlreadyExists,
			fmt.Sprintf("key file %s already exists (use --force to replace it)", opts.KeyFile), nil)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "generate key", err)
	}
	seed := hex.EncodeToString(priv.Seed()) + "\n"
	if err := os.WriteFile(opts.KeyFile, []byte(seed), 0600); err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "write key", err)
	}

	id, err := ir.IdentityOf(pub)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "derive verify key", err)
	}
	return f.Success(KeygenResult{Path: opts.KeyFile, VerifyKey: id.String()})
}
