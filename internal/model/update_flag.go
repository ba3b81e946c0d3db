package model

import (
	"math/bits"
	"strings"
)

// UpdateFlag is a set of pending update kinds. Each constant below is a
// single-kind set; kinds are combined with bitwise OR.
//
// The values are internal ordinals, not the wire mask bits; the player sync
// codec maps each kind to its wire bit.
type UpdateFlag uint16

const (
	UpdateInteracting UpdateFlag = 1 << iota
	UpdateHit
	UpdateChat
	UpdateAppearance
	UpdateForcedChat
	UpdateFaceTile
	UpdateAnimation
	UpdateSecondaryHit
	UpdateForceMovement
	UpdateGraphics

	updateKindCount = iota
)

var updateFlagNames = [updateKindCount]string{
	"interacting",
	"hit",
	"chat",
	"appearance",
	"forced_chat",
	"face_tile",
	"animation",
	"secondary_hit",
	"force_movement",
	"graphics",
}

// AllUpdateKinds lists every kind in declaration order.
func AllUpdateKinds() []UpdateFlag {
	kinds := make([]UpdateFlag, updateKindCount)
	for i := range kinds {
		kinds[i] = 1 << i
	}
	return kinds
}

// Has reports whether every kind in k is present in f.
func (f UpdateFlag) Has(k UpdateFlag) bool {
	return f&k == k
}

// Empty reports whether no kind is pending.
func (f UpdateFlag) Empty() bool {
	return f == 0
}

// Count returns the number of kinds in the set.
func (f UpdateFlag) Count() int {
	return bits.OnesCount16(uint16(f))
}

// String returns the kind names joined with '|'.
func (f UpdateFlag) String() string {
	if f == 0 {
		return "none"
	}
	var sb strings.Builder
	for i := range updateKindCount {
		if f&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(updateFlagNames[i])
	}
	if rest := f >> updateKindCount; rest != 0 {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString("unknown")
	}
	return sb.String()
}
