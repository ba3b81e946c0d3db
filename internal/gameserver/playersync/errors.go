package playersync

import "errors"

// Sentinel errors for the player sync codec.
//
// All of them are precondition violations: an encode call that returns one
// produced no packet, and the caller is expected to drop that observer's
// update for the tick.
var (
	ErrNegativeSkip       = errors.New("negative skip count")
	ErrSkipOverflow       = errors.New("skip count exceeds 2047")
	ErrUnsupportedUpdate  = errors.New("no block writer registered for pending update")
	ErrUnknownUpdateKind  = errors.New("unknown update kind")
	ErrAppearanceTooLarge = errors.New("appearance block exceeds 255 bytes")
	ErrInvalidName        = errors.New("display name contains a NUL byte")
	ErrAppearanceRange    = errors.New("appearance value does not fit its field")
	ErrNilObserver        = errors.New("observer is not in the player table")
	ErrMalformedPacket    = errors.New("malformed player update packet")
)
