package world

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lmf-git/gisaima/server/store"
)

// System chat event kinds emitted by the engine.
const (
	EventBattleStart = "battle_start"
	EventBattleEnd   = "battle_end"
	EventBattleJoin  = "join"
	EventFleeAttempt = "flee_attempt"
	EventFlee        = "flee"
	EventMobilise    = "mobilize"
	EventDemobilise  = "demobilize"
	EventMove        = "move"
	EventGather      = "gather"
	EventBuild       = "build"
	EventUpgrade     = "upgrade"
	EventRecruit     = "recruit"
	EventCraft       = "craft"
	EventPlayerJoin  = "player_join"
	EventSpawn       = "spawn"
)

// ChatEvent is a system message in the world's event stream.
type ChatEvent struct {
	Kind      string
	Text      string
	Timestamp int64
	Location  *TilePos
}

// chatKey builds the (kind, ts, id) composite key. Keying by a map rather
// than appending to a list keeps appends O(1) and lets the pruning pass
// delete a bounded prefix cheaply.
func chatKey(kind string, ts int64, id string) string {
	return fmt.Sprintf("%s_%d_%s", kind, ts, id)
}

// StageChatEvent stages one system event into the update.
func (w *World) StageChatEvent(u *Update, e ChatEvent) {
	id := uuid.NewString()[:8]
	m := map[string]store.Value{
		"type":      e.Kind,
		"text":      e.Text,
		"timestamp": e.Timestamp,
	}
	if e.Location != nil {
		m["location"] = map[string]store.Value{
			"x": int64(e.Location.X),
			"y": int64(e.Location.Y),
		}
	}
	u.Set(w.ChatPath(chatKey(e.Kind, e.Timestamp, id)), m)
}

// StageChatPruning stages deletions for everything but the newest
// MaxChatHistory messages by timestamp.
func (w *World) StageChatPruning(u *Update) error {
	v, err := w.Store.Read(store.Join("worlds", w.ID, "chat"))
	if err != nil {
		return err
	}
	msgs := Map(v)
	if len(msgs) <= MaxChatHistory {
		return nil
	}
	type entry struct {
		key string
		ts  int64
	}
	entries := make([]entry, 0, len(msgs))
	for key, mv := range msgs {
		entries = append(entries, entry{key: key, ts: IntOr(field(Map(mv), "timestamp"), 0)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ts != entries[j].ts {
			return entries[i].ts > entries[j].ts
		}
		return entries[i].key > entries[j].key
	})
	for _, e := range entries[MaxChatHistory:] {
		u.Delete(w.ChatPath(e.key))
	}
	return nil
}
