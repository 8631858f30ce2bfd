package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// MaxRecruitQuantity bounds one recruitment order.
const MaxRecruitQuantity = 100

// RecruitRequest queues unit production at a structure.
type RecruitRequest struct {
	StructureID string
	X, Y        int
	UnitType    string
	Quantity    int64
	Cost        world.ItemBag
}

// RecruitResult reports the queued order.
type RecruitResult struct {
	RecruitmentID string
	TicksRequired int64
}

// Recruit appends a production order to the structure's queue, deducting
// the cost with the two-stage policy and recording the split so that a
// cancellation refunds what was actually taken.
func Recruit(c *Context, req RecruitRequest) (*RecruitResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if req.Quantity < 1 || req.Quantity > MaxRecruitQuantity {
		return nil, Errorf(InvalidArgument, "quantity must be between 1 and %d", MaxRecruitQuantity)
	}
	def, ok := world.UnitDefOf(req.UnitType)
	if !ok {
		return nil, Errorf(InvalidArgument, "unknown unit type %q", req.UnitType)
	}
	if len(req.Cost) == 0 {
		return nil, Errorf(InvalidArgument, "cost is required")
	}
	info, err := c.World.LoadInfo()
	if err != nil {
		return nil, internalErr(err)
	}
	pos := world.TilePos{X: req.X, Y: req.Y}
	now := c.nowMillis()
	recruitmentID := uuid.NewString()
	ticksRequired := ceilDiv(def.TimePerUnit*req.Quantity, int64(info.EffectiveSpeed()))

	var cmdErr *Error
	err = c.World.Store.Transact(c.World.TilePath(pos), func(cur store.Value) (store.Value, error) {
		cmdErr = nil
		t := world.DecodeTile(pos, cur)
		s := t.Structure
		if s == nil || s.ID != req.StructureID {
			cmdErr = Errorf(NotFound, "structure %s is not on this tile", req.StructureID)
			return nil, store.ErrAborted
		}
		if s.Type == "ruins" || s.Status == world.StructureBuilding {
			cmdErr = Errorf(FailedPrecondition, "structure cannot recruit right now")
			return nil, store.ErrAborted
		}
		if def.Race != "" && s.Race != def.Race {
			cmdErr = Errorf(PermissionDenied, "%s can only be recruited at a %s structure", req.UnitType, def.Race)
			return nil, store.ErrAborted
		}
		if s.Owner != c.UID && !s.Public() {
			cmdErr = Errorf(PermissionDenied, "structure is not yours")
			return nil, store.ErrAborted
		}
		if int64(len(s.RecruitmentQueue)) >= s.QueueCapacity() {
			cmdErr = Errorf(FailedPrecondition, "recruitment queue is full")
			return nil, store.ErrAborted
		}

		deduction, derr := deductTwoStage(s, c.UID, req.Cost)
		if derr != nil {
			cmdErr = derr
			return nil, store.ErrAborted
		}

		if s.RecruitmentQueue == nil {
			s.RecruitmentQueue = map[string]world.Recruitment{}
		}
		s.RecruitmentQueue[recruitmentID] = world.Recruitment{
			ID:            recruitmentID,
			Owner:         c.UID,
			UnitType:      req.UnitType,
			Quantity:      req.Quantity,
			TicksRequired: ticksRequired,
			QueuedAt:      now,
			Deduction:     deduction,
		}

		tile := world.Map(store.Clone(cur))
		if tile == nil {
			tile = map[string]store.Value{}
		}
		tile["structure"] = s.Encode()
		return tile, nil
	})
	if cmdErr != nil {
		return nil, cmdErr
	}
	if err != nil {
		return nil, internalErr(err)
	}

	u := world.NewUpdate()
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventRecruit,
		Text:      fmt.Sprintf("Training of %d %s began at (%d, %d).", req.Quantity, req.UnitType, req.X, req.Y),
		Timestamp: now,
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return nil, internalErr(err)
	}
	return &RecruitResult{RecruitmentID: recruitmentID, TicksRequired: ticksRequired}, nil
}

// CancelRecruitmentRequest withdraws a queued production order.
type CancelRecruitmentRequest struct {
	RecruitmentID string
	StructureID   string
	X, Y          int
}

// CancelRecruitment removes the order and refunds a share of its cost to
// the caller's personal bank: full refund minus the elapsed percentage,
// never less than half.
func CancelRecruitment(c *Context, req CancelRecruitmentRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	pos := world.TilePos{X: req.X, Y: req.Y}

	var cmdErr *Error
	err := c.World.Store.Transact(c.World.TilePath(pos), func(cur store.Value) (store.Value, error) {
		cmdErr = nil
		t := world.DecodeTile(pos, cur)
		s := t.Structure
		if s == nil || s.ID != req.StructureID {
			cmdErr = Errorf(NotFound, "structure %s is not on this tile", req.StructureID)
			return nil, store.ErrAborted
		}
		r, ok := s.RecruitmentQueue[req.RecruitmentID]
		if !ok {
			cmdErr = Errorf(NotFound, "recruitment %s not found", req.RecruitmentID)
			return nil, store.ErrAborted
		}
		if r.Owner != c.UID {
			cmdErr = Errorf(PermissionDenied, "recruitment %s is not yours", req.RecruitmentID)
			return nil, store.ErrAborted
		}

		refundPercent := int64(100)
		if r.TicksRequired > 0 {
			refundPercent = 100 - r.TicksElapsed*100/r.TicksRequired
		}
		if refundPercent < 50 {
			refundPercent = 50
		}
		refundToBank(s, c.UID, scaleBag(r.Deduction.Total(), refundPercent, 100))
		delete(s.RecruitmentQueue, req.RecruitmentID)

		tile := world.Map(store.Clone(cur))
		if tile == nil {
			tile = map[string]store.Value{}
		}
		tile["structure"] = s.Encode()
		return tile, nil
	})
	if cmdErr != nil {
		return cmdErr
	}
	if err != nil {
		return internalErr(err)
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		b = 1
	}
	return (a + b - 1) / b
}
