package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/syncbridge/internal/ir"
)

// marshalJSON encodes v as JSON TEXT with HTML escaping disabled so stored
// rows match what peers send on the wire.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func marshalEvent(ev ir.Event) (string, error) {
	data, err := marshalJSON(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return data, nil
}

func unmarshalEvent(data string) (ir.Event, error) {
	var ev ir.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return ir.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

func marshalNode(n ir.Node) (string, error) {
	data, err := marshalJSON(n)
	if err != nil {
		return "", fmt.Errorf("marshal node: %w", err)
	}
	return data, nil
}

func unmarshalNode(data string) (ir.Node, error) {
	var n ir.Node
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return ir.Node{}, fmt.Errorf("unmarshal node: %w", err)
	}
	return n, nil
}

func marshalNodes(nodes []ir.Node) (string, error) {
	if nodes == nil {
		nodes = []ir.Node{}
	}
	data, err := marshalJSON(nodes)
	if err != nil {
		return "", fmt.Errorf("marshal nodes: %w", err)
	}
	return data, nil
}

func unmarshalNodes(data string) ([]ir.Node, error) {
	var nodes []ir.Node
	if err := json.Unmarshal([]byte(data), &nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	return nodes, nil
}

func marshalIdentities(ids []ir.Identity) (string, error) {
	if ids == nil {
		ids = []ir.Identity{}
	}
	data, err := marshalJSON(ids)
	if err != nil {
		return "", fmt.Errorf("marshal identities: %w", err)
	}
	return data, nil
}

func unmarshalIdentities(data string) ([]ir.Identity, error) {
	var ids []ir.Identity
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal identities: %w", err)
	}
	return ids, nil
}

// marshalPayload returns the canonical JSON of obj, or "" for a deletion.
func marshalPayload(obj ir.Object) (string, error) {
	if obj == nil {
		return "", nil
	}
	data, err := ir.CanonicalObject(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// isConstraintViolation reports whether err is a UNIQUE or PRIMARY KEY
// violation from SQLite.
func isConstraintViolation(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
