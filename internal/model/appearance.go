package model

import "github.com/nshusa/battlerune-server/internal/constants"

// Gender is the body type code sent to the client.
type Gender uint8

const (
	GenderMale   Gender = 0
	GenderFemale Gender = 1
)

// Style slot indices into Appearance.Style.
const (
	StyleLegs = iota
	StyleFullMask
	StyleChest
	StyleShield
	StyleHat
	StyleFullBody
	StyleFeet

	StyleSlots
)

// AnimationSet holds the movement animation ids shown for a player.
type AnimationSet struct {
	Stand     int
	StandTurn int
	Walk      int
	Turn180   int
	Turn90CW  int
	Turn90CCW int
	Run       int
}

// DefaultAnimations is the unarmed humanoid animation set.
var DefaultAnimations = AnimationSet{
	Stand:     808,
	StandTurn: 823,
	Walk:      819,
	Turn180:   820,
	Turn90CW:  821,
	Turn90CCW: 822,
	Run:       824,
}

// DefaultStyle is the default male body kit.
var DefaultStyle = [StyleSlots]int{0, 10, 18, 26, 33, 36, 42}

// Appearance is a player's visual definition.
type Appearance struct {
	Gender      Gender
	Style       [StyleSlots]int
	Name        string
	CombatLevel int
	Animations  AnimationSet
}

// DefaultAppearance returns the starting appearance for a new player.
func DefaultAppearance(name string) Appearance {
	return Appearance{
		Gender:      GenderMale,
		Style:       DefaultStyle,
		Name:        name,
		CombatLevel: constants.DefaultCombatLevel,
		Animations:  DefaultAnimations,
	}
}
