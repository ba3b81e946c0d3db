package constants

// Protocol constants for the player synchronization packet.
//
// Values follow the client revision this server targets; the client decodes the
// player update packet using exactly these widths, so they are not tunable.

// Slot table
const (
	// MaxPlayers is the capacity of the global player slot table.
	// Slot 0 is never assigned, so at most MaxPlayers-1 players are online.
	MaxPlayers = 2048

	// SlotBitmapSize is the size in bytes of a bitmap with one bit per slot.
	SlotBitmapSize = MaxPlayers / 8
)

// Player update packet
const (
	// PlayerUpdateOpcode is the server→client opcode of the player update packet.
	PlayerUpdateOpcode = 83

	// MaxSkipRun is the longest skip run the 11-bit long-skip payload can carry.
	MaxSkipRun = 2047

	// MaxAppearanceBlockSize is the largest appearance sub-block; its length
	// prefix is a single byte.
	MaxAppearanceBlockSize = 255

	// LocalCoordinateBits is the width of each coordinate written when a player
	// is added to an observer's local list.
	LocalCoordinateBits = 13
)

// Gameplay defaults
const (
	// DefaultViewingDistance is the radius (in tiles) within which other
	// players are introduced to an observer.
	DefaultViewingDistance = 15

	// DefaultAddThreshold caps how many players may be introduced to one
	// observer per tick.
	DefaultAddThreshold = 15

	// DefaultCombatLevel is shown for every player until combat levels are tracked.
	DefaultCombatLevel = 126
)

// Byte modification bias used by the "add" transformation (value + 128).
const ByteModificationBias = 128
