package cmd

import (
	"fmt"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// JoinWorldRequest registers the caller in a world.
type JoinWorldRequest struct {
	Race          string
	DisplayName   string
	SpawnPosition *world.TilePos
}

// JoinWorld creates the caller's per-world record with alive=false. The
// world's player count is incremented only when this is a new join, so
// repeating the command is harmless.
func JoinWorld(c *Context, req JoinWorldRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	if req.Race == "" {
		return Errorf(InvalidArgument, "race is required")
	}
	exists, err := c.World.Exists()
	if err != nil {
		return internalErr(err)
	}
	if !exists {
		return Errorf(NotFound, "world %s does not exist", c.World.ID)
	}

	created := false
	err = c.World.Store.Transact(c.World.PlayerRecordPath(c.UID), func(cur store.Value) (store.Value, error) {
		created = false
		if cur != nil {
			// Already joined; leave the record untouched.
			return nil, store.ErrAborted
		}
		created = true
		p := &world.PlayerRecord{
			UID:         c.UID,
			Race:        req.Race,
			DisplayName: req.DisplayName,
			Alive:       false,
		}
		if req.SpawnPosition != nil {
			loc := *req.SpawnPosition
			p.LastLocation = &loc
		}
		return p.Encode(), nil
	})
	if err != nil {
		return internalErr(err)
	}
	if !created {
		return nil
	}

	if err := c.World.Store.Transact(c.World.InfoPath(), func(cur store.Value) (store.Value, error) {
		info := world.DecodeInfo(cur)
		info.PlayerCount++
		return info.Encode(), nil
	}); err != nil {
		return internalErr(err)
	}

	u := world.NewUpdate()
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventPlayerJoin,
		Text:      fmt.Sprintf("%s joined the world.", displayOrUID(req.DisplayName, c.UID)),
		Timestamp: c.nowMillis(),
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}

// SpawnPlayerRequest places the caller's entity on a tile.
type SpawnPlayerRequest struct {
	SpawnX, SpawnY int
}

// SpawnPlayer flips the caller alive and puts their entity on the chosen
// tile.
func SpawnPlayer(c *Context, req SpawnPlayerRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	p, err := c.World.LoadPlayer(c.UID)
	if err != nil {
		return internalErr(err)
	}
	if p == nil {
		return Errorf(FailedPrecondition, "you have not joined this world")
	}
	if p.Alive {
		return Errorf(FailedPrecondition, "you are already spawned")
	}

	pos := world.TilePos{X: req.SpawnX, Y: req.SpawnY}
	p.Alive = true
	p.LastLocation = &pos

	u := world.NewUpdate()
	u.Set(c.World.PlayerRecordPath(c.UID), p.Encode())
	u.Set(c.World.PlayerPresencePath(pos, c.UID), world.EncodePlayerPresence(world.PlayerPresence{
		UID:         c.UID,
		DisplayName: p.DisplayName,
		Race:        p.Race,
		Alive:       true,
	}))
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventSpawn,
		Text:      fmt.Sprintf("%s entered the world at (%d, %d).", displayOrUID(p.DisplayName, c.UID), pos.X, pos.Y),
		Timestamp: c.nowMillis(),
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}

func displayOrUID(name, uid string) string {
	if name != "" {
		return name
	}
	return uid
}
