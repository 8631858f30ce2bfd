package cmd

import (
	"github.com/lmf-git/gisaima/server/world"
)

// deductTwoStage applies the shared-resource policy: the caller's personal
// bank is drawn down first, and shared storage covers the remainder only
// when the caller owns the structure. When the reachable total is short the
// structure is left untouched and the command fails without mutation.
func deductTwoStage(s *world.Structure, uid string, cost world.ItemBag) (world.ResourceDeduction, *Error) {
	bank := s.Bank(uid).Clone()
	if bank == nil {
		bank = world.ItemBag{}
	}
	shared := s.Items.Clone()
	if shared == nil {
		shared = world.ItemBag{}
	}
	canUseShared := s.Owner == uid

	fromBank := world.ItemBag{}
	fromShared := world.ItemBag{}
	for _, code := range cost.Codes() {
		need := cost[code]
		if have := bank[code]; have > 0 {
			take := min64(have, need)
			fromBank[code] = take
			need -= take
		}
		if need > 0 && canUseShared {
			if have := shared[code]; have > 0 {
				take := min64(have, need)
				fromShared[code] = take
				need -= take
			}
		}
		if need > 0 {
			return world.ResourceDeduction{}, Errorf(FailedPrecondition,
				"insufficient %s: %d more needed", code, need)
		}
	}

	bank.Deduct(fromBank)
	shared.Deduct(fromShared)
	if s.Banks == nil {
		s.Banks = map[string]world.ItemBag{}
	}
	s.Banks[uid] = bank
	s.Items = shared
	return world.ResourceDeduction{Personal: fromBank, Shared: fromShared}, nil
}

// refundToBank returns items to the caller's personal bank.
func refundToBank(s *world.Structure, uid string, refund world.ItemBag) {
	if refund.Total() == 0 {
		return
	}
	if s.Banks == nil {
		s.Banks = map[string]world.ItemBag{}
	}
	bank := s.Banks[uid]
	if bank == nil {
		bank = world.ItemBag{}
	}
	bank.Add(refund)
	s.Banks[uid] = bank
}

// scaleBag multiplies every quantity by num/den, flooring, and drops codes
// that scale to zero.
func scaleBag(b world.ItemBag, num, den int64) world.ItemBag {
	out := world.ItemBag{}
	for code, q := range b {
		if scaled := q * num / den; scaled > 0 {
			out[code] = scaled
		}
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
