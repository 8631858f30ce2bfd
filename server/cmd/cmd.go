// Package cmd implements the player command surface. Every command follows
// the same skeleton: authenticate, validate arguments, read the tile and
// whatever subtrees it references, enforce the domain rules, stage a
// path-keyed update and commit it atomically, then emit a chat event
// (fleeBattle and the cancel commands emit none).
// Failures surface as one of the six error kinds with no partial mutation.
package cmd

import (
	"fmt"
	"time"

	"github.com/lmf-git/gisaima/server/world"
)

// Kind classifies command failures. The kinds are part of the public
// surface and are returned to callers unchanged.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	InvalidArgument    Kind = "invalid-argument"
	NotFound           Kind = "not-found"
	PermissionDenied   Kind = "permission-denied"
	FailedPrecondition Kind = "failed-precondition"
	Internal           Kind = "internal"
)

// Error is a command failure: a kind plus a short human message. Stack
// traces and wrapped internals never leak through it.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Errorf builds an Error.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// internalErr wraps an unexpected store failure.
func internalErr(err error) *Error {
	return &Error{Kind: Internal, Message: "internal error"}
}

// KindOf extracts the kind from err, mapping unknown errors to Internal.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return Internal
}

// Context carries the authenticated caller and the world a command runs
// against.
type Context struct {
	UID   string
	World *world.World
	Now   time.Time
}

// authenticate rejects anonymous contexts.
func (c *Context) authenticate() *Error {
	if c.UID == "" {
		return Errorf(Unauthenticated, "caller is not authenticated")
	}
	if c.World == nil {
		return Errorf(InvalidArgument, "world is required")
	}
	return nil
}

// nowMillis is the command's timestamp.
func (c *Context) nowMillis() int64 {
	if c.Now.IsZero() {
		return time.Now().UnixMilli()
	}
	return c.Now.UnixMilli()
}

// loadTile reads the tile at (x, y).
func (c *Context) loadTile(x, y int) (*world.Tile, *Error) {
	t, err := c.World.LoadTile(world.TilePos{X: x, Y: y})
	if err != nil {
		return nil, internalErr(err)
	}
	return t, nil
}

// ownedGroup fetches a group on the tile and checks ownership.
func ownedGroup(c *Context, t *world.Tile, groupID string) (*world.Group, *Error) {
	g, ok := t.Groups[groupID]
	if !ok {
		return nil, Errorf(NotFound, "group %s is not on this tile", groupID)
	}
	if g.Owner != c.UID {
		return nil, Errorf(PermissionDenied, "group %s is not yours", groupID)
	}
	return g, nil
}
