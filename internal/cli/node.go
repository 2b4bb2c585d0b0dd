package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/project"
	"github.com/roach88/syncbridge/internal/resolve"
	"github.com/roach88/syncbridge/internal/snapshot"
	"github.com/roach88/syncbridge/internal/store"
	"github.com/roach88/syncbridge/internal/transport"
)

// node is a local syncbridge node opened from the root flags.
type node struct {
	store   *store.Store
	self    ir.Node
	network *transport.Dialer
	service *project.Service
}

func (n *node) Close() {
	if err := n.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// credentials returns local credentials, acting as caller when it is set.
func (n *node) credentials(caller string) (project.Credentials, error) {
	cred := project.Local(n.self)
	if caller == "" {
		return cred, nil
	}
	id, err := ir.ParseIdentity(caller)
	if err != nil {
		return cred, fmt.Errorf("--as: %w", err)
	}
	return cred.As(id), nil
}

// lookupNode returns this node for its own key and the registered peer
// otherwise.
func (n *node) lookupNode(ctx context.Context, key ir.Identity) (ir.Node, error) {
	if key == n.self.VerifyKey {
		return n.self, nil
	}
	return n.store.GetPeerByVerifyKey(ctx, key)
}

func openStore(opts *RootOptions) (*store.Store, error) {
	if opts.Database == "" {
		return nil, errors.New("no database: pass --db or set database in the config file")
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, err
	}
	slog.Debug("database ready", "path", opts.Database)
	return st, nil
}

// openNode opens the database and signing key and wires the project
// service to the websocket network.
func openNode(opts *RootOptions) (*node, error) {
	if opts.KeyFile == "" {
		return nil, errors.New("no signing key: pass --key or set key_file in the config file")
	}
	key, err := readKey(opts.KeyFile)
	if err != nil {
		return nil, err
	}
	self, err := selfNode(opts, key)
	if err != nil {
		return nil, err
	}

	cfg := opts.config()
	roles, err := cfg.StaticRoles()
	if err != nil {
		return nil, err
	}

	st, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	network := &transport.Dialer{
		Self:     self,
		Key:      key,
		Peers:    st,
		TokenTTL: cfg.TTL(),
	}
	service := project.New(
		project.StoreStash{Store: st},
		network,
		project.StoreNotifier{Store: st},
		roles,
	)
	slog.Debug("node ready", "node", self.String(), "route", self.Route)
	return &node{store: st, self: self, network: network, service: service}, nil
}

func selfNode(opts *RootOptions, key ed25519.PrivateKey) (ir.Node, error) {
	id, err := ir.IdentityOf(key.Public().(ed25519.PublicKey))
	if err != nil {
		return ir.Node{}, err
	}
	name := opts.NodeName
	if name == "" {
		name = "local"
	}
	nodeID := opts.NodeID
	if nodeID == "" {
		nodeID = "node-" + name
	}
	return ir.Node{Name: name, ID: nodeID, VerifyKey: id, Route: opts.Route}, nil
}

// readKey reads a key file holding the hex-encoded ed25519 seed.
func readKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("read key %s: seed is %d bytes, want %d", path, len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// errorCode maps an operation error onto a CLI error code.
func errorCode(err error) string {
	var broadcast *project.BroadcastError
	var schema *snapshot.SchemaError
	var governing *resolve.GoverningObjectError
	switch {
	case errors.As(err, &broadcast):
		return ErrCodePeer
	case project.IsPermissionDenied(err):
		return ErrCodePermission
	case project.IsSequenceViolation(err):
		return ErrCodeSequence
	case project.IsNotFound(err), errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	case errors.As(err, &schema):
		return ErrCodeInvalidInput
	case errors.As(err, &governing), errors.Is(err, resolve.ErrUngovernedJob):
		return ErrCodeResolve
	}
	switch project.CodeOf(err) {
	case project.ErrCodePeerUnreachable, project.ErrCodeRemoteSessionFailed:
		return ErrCodePeer
	case project.ErrCodeAlreadyExists:
		return ErrCodeAlreadyExists
	case project.ErrCodeInvalidArgument:
		return ErrCodeInvalidInput
	}
	return ErrCodeGeneric
}
