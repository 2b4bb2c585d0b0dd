package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/syncbridge/internal/ir"
)

// PutPeer inserts or replaces a known network peer.
func (s *Store) PutPeer(ctx context.Context, peer ir.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peers (verify_key, name, node_id, route)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(verify_key) DO UPDATE SET
			name = excluded.name,
			node_id = excluded.node_id,
			route = excluded.route
	`, peer.VerifyKey.String(), peer.Name, peer.ID, peer.Route)
	if err != nil {
		return fmt.Errorf("put peer %s: %w", peer, err)
	}
	return nil
}

// GetPeerByVerifyKey returns the peer registered under key.
// Returns ErrNotFound if there is none.
func (s *Store) GetPeerByVerifyKey(ctx context.Context, key ir.Identity) (ir.Node, error) {
	var peer ir.Node
	var vk string
	err := s.db.QueryRowContext(ctx, `
		SELECT verify_key, name, node_id, route FROM peers WHERE verify_key = ?
	`, key.String()).Scan(&vk, &peer.Name, &peer.ID, &peer.Route)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Node{}, fmt.Errorf("peer %s: %w", key.Short(), ErrNotFound)
	}
	if err != nil {
		return ir.Node{}, fmt.Errorf("get peer: %w", err)
	}
	if peer.VerifyKey, err = ir.ParseIdentity(vk); err != nil {
		return ir.Node{}, fmt.Errorf("get peer: %w", err)
	}
	return peer, nil
}

// ListPeers returns all known peers ordered by name, then key.
func (s *Store) ListPeers(ctx context.Context) ([]ir.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT verify_key, name, node_id, route FROM peers
		ORDER BY name ASC, verify_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query peers: %w", err)
	}
	defer rows.Close()

	peers := []ir.Node{}
	for rows.Next() {
		var peer ir.Node
		var vk string
		if err := rows.Scan(&vk, &peer.Name, &peer.ID, &peer.Route); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		if peer.VerifyKey, err = ir.ParseIdentity(vk); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peers: %w", err)
	}
	return peers, nil
}
