package playersync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
	"github.com/nshusa/battlerune-server/internal/testutil"
)

func TestDecode_Truncated(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(2, 2))
	table := testutil.NewPlayerTable(t, observer, other)

	vp := NewViewport(PartitionOccupancy)
	snap := vp.Snapshot()
	pkt, err := NewEncoder(WithIntroducer(AddPlayerIntroducer{})).Encode(table, observer, vp)
	require.NoError(t, err)

	opts := DecodeOptions{Snapshot: snap, Additions: true}
	_, err = Decode(pkt.Payload, opts)
	require.NoError(t, err)

	_, err = Decode(pkt.Payload[:len(pkt.Payload)-1], opts)
	assert.Error(t, err)

	_, err = Decode(append(pkt.Payload, 0x00), opts)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestDecode_WrongSnapshotFails(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	table := testutil.NewPlayerTable(t, observer)

	vp := NewViewport(PartitionOccupancy)
	pkt, err := NewEncoder().Encode(table, observer, vp)
	require.NoError(t, err)

	// decoding against the post-encode view walks the wrong passes
	_, err = Decode(pkt.Payload, DecodeOptions{Snapshot: vp.Snapshot()})
	assert.Error(t, err)
}

func TestDecode_UnsupportedMask(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(1, 0))
	table := testutil.NewPlayerTable(t, observer, other)
	testutil.ResetUpdates(table)

	reg := DefaultRegistry()
	require.NoError(t, reg.Register(model.UpdateGraphics, func(dst *packet.Writer, _ model.Actor) error {
		dst.WriteShort(0x1234)
		return dst.Err()
	}))
	enc := NewEncoder(WithRegistry(reg))
	vp := NewViewport(PartitionOccupancy)
	_, err := enc.Encode(table, observer, vp)
	require.NoError(t, err)

	other.Flag(model.UpdateGraphics)
	snap := vp.Snapshot()
	pkt, err := enc.Encode(table, observer, vp)
	require.NoError(t, err)

	frame, err := Decode(pkt.Payload, DecodeOptions{Snapshot: snap})
	assert.ErrorIs(t, err, ErrUnsupportedUpdate)
	require.Len(t, frame.Updates, 1)
	assert.Equal(t, MaskGraphics|MaskExtended, frame.Updates[0].Mask)
}
