// Package auth defines the authentication capability the protocol
// handler consults when a connection sends its auth frame: exchange a
// bearer token and a target document id for a user id and a permission
// level. It's a narrow capability interface with a couple of concrete,
// swappable implementations.
package auth

import (
	"context"

	"docengine/docerrors"
)

// Permission is the two-level access grant a successful authentication
// returns.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// Result is what a successful Authenticate call returns.
type Result struct {
	UserID     string
	Permission Permission
}

// Authenticator exchanges a bearer token and a target document id for a
// Result, or a docerrors.ErrAuthentication on rejection.
type Authenticator interface {
	Authenticate(ctx context.Context, token, documentID string) (Result, error)
}

// Disabled grants write access to every token, for local development and
// tests where the protocol handler's auth gate would otherwise get in
// the way.
type Disabled struct {
	UserID string
}

// Authenticate implements Authenticator.
func (d Disabled) Authenticate(ctx context.Context, token, documentID string) (Result, error) {
	userID := d.UserID
	if userID == "" {
		userID = "anonymous"
	}
	return Result{UserID: userID, Permission: PermissionWrite}, nil
}

// StaticEntry is one row of a StaticTable.
type StaticEntry struct {
	Token      string
	UserID     string
	Permission Permission
	// DocumentIDs restricts the entry to specific documents; empty means
	// every document.
	DocumentIDs []string
}

// StaticTable authenticates by exact token lookup against a fixed list of
// entries, for tests and small single-process deployments.
type StaticTable struct {
	byToken map[string]StaticEntry
}

// NewStaticTable builds a StaticTable from entries. Later entries with a
// repeated token overwrite earlier ones.
func NewStaticTable(entries ...StaticEntry) *StaticTable {
	t := &StaticTable{byToken: make(map[string]StaticEntry, len(entries))}
	for _, e := range entries {
		t.byToken[e.Token] = e
	}
	return t
}

// Authenticate implements Authenticator.
func (t *StaticTable) Authenticate(ctx context.Context, token, documentID string) (Result, error) {
	entry, ok := t.byToken[token]
	if !ok {
		return Result{}, docerrors.ErrAuthentication{Message: "unknown token"}
	}
	if len(entry.DocumentIDs) > 0 && !contains(entry.DocumentIDs, documentID) {
		return Result{}, docerrors.ErrAuthentication{Message: "token not valid for this document"}
	}
	return Result{UserID: entry.UserID, Permission: entry.Permission}, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
