package playersync

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
	"github.com/nshusa/battlerune-server/internal/testutil"
	"github.com/nshusa/battlerune-server/internal/world"
)

// encodeTick encodes one tick for observer and decodes the result back.
func encodeTick(t *testing.T, enc *Encoder, table SlotTable, observer model.Actor, vp *Viewport, additions bool) (packet.Packet, Frame) {
	t.Helper()

	snap := vp.Snapshot()
	pkt, err := enc.Encode(table, observer, vp)
	require.NoError(t, err)
	testutil.AssertPlayerUpdate(t, pkt)

	frame, err := Decode(pkt.Payload, DecodeOptions{Snapshot: snap, Additions: additions})
	require.NoError(t, err)
	return pkt, frame
}

func nearSpawn(dx, dy int32) model.Location {
	return testutil.Fixtures.Spawn.Translate(dx, dy)
}

func countAdded(f Frame) int {
	n := 0
	for _, u := range f.Updates {
		if u.Added {
			n++
		}
	}
	return n
}

// Scenario: nobody else is online, every slot is covered by skip runs.
func TestEncode_Alone(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	table := testutil.NewPlayerTable(t, observer)
	testutil.ResetUpdates(table)

	enc := NewEncoder()
	vp := NewViewport(PartitionOccupancy)

	// fresh viewport: one candidate pass, own slot flagged 0, then a 2046 run
	pkt, frame := encodeTick(t, enc, table, observer, vp, false)
	testutil.AssertPayload(t, []byte{0x7F, 0xF8}, pkt)
	assert.Equal(t, []byte{83, 0x00, 0x02, 0x7F, 0xF8}, pkt.Encode())
	assert.Empty(t, frame.Updates)
	assert.Equal(t, MaxSlots-1, frame.Skipped)

	// own slot is known now; one known run of 0 and one candidate run of 2045
	second, frame := encodeTick(t, enc, table, observer, vp, false)
	testutil.AssertPayload(t, []byte{0x00, 0x7F, 0xF4}, second)
	assert.Empty(t, frame.Updates)
	assert.Equal(t, MaxSlots-1, frame.Skipped)

	third, _ := encodeTick(t, enc, table, observer, vp, false)
	assert.Equal(t, second.Payload, third.Payload)
}

// Scenario: a nearby player with a fresh appearance is introduced.
func TestEncode_IntroducesNearbyPlayer(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(3, -2))
	table := testutil.NewPlayerTable(t, observer, other)
	observer.ResetUpdates()

	enc := NewEncoder(WithIntroducer(AddPlayerIntroducer{}))
	vp := NewViewport(PartitionOccupancy)

	pkt, frame := encodeTick(t, enc, table, observer, vp, true)
	require.Len(t, frame.Updates, 1)

	u := frame.Updates[0]
	assert.Equal(t, 2, u.Slot)
	assert.False(t, u.Known)
	assert.True(t, u.Added)
	assert.Equal(t, 3225, u.X)
	assert.Equal(t, 3216, u.Y)
	assert.Equal(t, MaskAppearance, u.Mask)
	require.NotNil(t, u.Appearance)
	assert.Equal(t, other.Appearance(), *u.Appearance)
	assert.Equal(t, MaxSlots-2, frame.Skipped)

	// the packet ends with a one-byte mask and the literal appearance block
	raw, err := EncodeAppearance(other.Appearance())
	require.NoError(t, err)
	tail := pkt.Payload[len(pkt.Payload)-len(raw)-2:]
	assert.Equal(t, byte(MaskAppearance), tail[0])
	assert.Equal(t, byte(len(raw)+constants.ByteModificationBias), tail[1])
	for i, b := range raw {
		require.Equal(t, b+constants.ByteModificationBias, tail[i+2])
	}

	assert.Equal(t, []int{1, 2}, vp.Known())
	assert.Equal(t, uint8(throttleSelector), vp.Throttle(2), "introduced slot was processed")

	// still flagged next tick: now sent through the known set
	_, frame = encodeTick(t, enc, table, observer, vp, true)
	require.Len(t, frame.Updates, 1)
	u = frame.Updates[0]
	assert.Equal(t, 2, u.Slot)
	assert.True(t, u.Known)
	assert.False(t, u.Added)
	assert.Equal(t, MaskAppearance, u.Mask)
	assert.Zero(t, u.Movement)
	require.NotNil(t, u.Appearance)
	assert.Equal(t, "woox", u.Appearance.Name)

	other.ResetUpdates()
	_, frame = encodeTick(t, enc, table, observer, vp, true)
	assert.Empty(t, frame.Updates)
}

func TestEncode_NotImplementedIntroducer(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(1, 1))
	table := testutil.NewPlayerTable(t, observer, other)

	enc := NewEncoder()
	vp := NewViewport(PartitionOccupancy)

	_, frame := encodeTick(t, enc, table, observer, vp, false)
	require.Len(t, frame.Updates, 1)
	assert.Equal(t, SlotUpdate{Slot: 2}, frame.Updates[0])

	assert.Zero(t, vp.Throttle(2), "a candidate that was not introduced stays unprocessed")
	assert.Equal(t, uint8(throttleSelector), vp.Throttle(1))
	assert.Equal(t, uint8(throttleSelector), vp.Throttle(3))
}

func TestEncode_FarPlayerIsSkipped(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	far := testutil.NewPlayer(t, "woox", testutil.Fixtures.FarAway)
	upstairs := testutil.NewPlayer(t, "b0aty", testutil.Fixtures.Spawn.WithCoordinates(3222, 3218, 1))
	table := testutil.NewPlayerTable(t, observer, far, upstairs)

	enc := NewEncoder(WithIntroducer(AddPlayerIntroducer{}))
	vp := NewViewport(PartitionIntroduced)

	pkt, frame := encodeTick(t, enc, table, observer, vp, true)
	assert.Empty(t, frame.Updates)
	testutil.AssertPayload(t, []byte{0x7F, 0xF8}, pkt)
	assert.Equal(t, []int{1}, vp.Known())
}

func TestEncode_ViewingDistance(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	edge := testutil.NewPlayer(t, "woox", nearSpawn(constants.DefaultViewingDistance, 0))
	beyond := testutil.NewPlayer(t, "b0aty", nearSpawn(0, constants.DefaultViewingDistance+1))
	table := testutil.NewPlayerTable(t, observer, edge, beyond)

	_, frame := encodeTick(t, NewEncoder(WithIntroducer(AddPlayerIntroducer{})), table, observer, NewViewport(PartitionIntroduced), true)
	require.Len(t, frame.Updates, 1)
	assert.Equal(t, 2, frame.Updates[0].Slot)

	wide := NewEncoder(WithIntroducer(AddPlayerIntroducer{}), WithViewingDistance(32))
	_, frame = encodeTick(t, wide, table, observer, NewViewport(PartitionIntroduced), true)
	assert.Equal(t, 2, countAdded(frame))
}

func TestEncode_AddThreshold(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	players := []*model.Player{observer}
	for i := range 20 {
		players = append(players, testutil.NewPlayer(t, fmt.Sprintf("bot%d", i), nearSpawn(int32(i%5), int32(i/5))))
	}
	table := testutil.NewPlayerTable(t, players...)

	enc := NewEncoder(WithIntroducer(AddPlayerIntroducer{}))
	vp := NewViewport(PartitionIntroduced)

	_, frame := encodeTick(t, enc, table, observer, vp, true)
	assert.Equal(t, constants.DefaultAddThreshold, countAdded(frame))
	assert.Len(t, vp.Known(), 1+constants.DefaultAddThreshold)
	for slot := 2; slot <= 1+constants.DefaultAddThreshold; slot++ {
		assert.Equal(t, players[slot-1].ID(), vp.Introduced(slot))
	}

	_, frame = encodeTick(t, enc, table, observer, vp, true)
	assert.Equal(t, 20-constants.DefaultAddThreshold, countAdded(frame))
	assert.Len(t, vp.Known(), len(players))

	small := NewEncoder(WithIntroducer(AddPlayerIntroducer{}), WithAddThreshold(3))
	_, frame = encodeTick(t, small, table, observer, NewViewport(PartitionIntroduced), true)
	assert.Equal(t, 3, countAdded(frame))
}

func TestEncode_PartitionAndThrottleAcrossTicks(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	table := testutil.NewPlayerTable(t, observer)
	enc := NewEncoder(WithIntroducer(AddPlayerIntroducer{}))

	for _, policy := range []PartitionPolicy{PartitionOccupancy, PartitionIntroduced} {
		vp := NewViewport(policy)
		var joined []*model.Player

		for tick := range 12 {
			switch {
			case tick%3 == 0:
				p := testutil.NewPlayer(t, fmt.Sprintf("p%d-%d", policy, tick), nearSpawn(int32(tick), 0))
				_, err := table.Register(p)
				require.NoError(t, err)
				joined = append(joined, p)
			case tick%4 == 0 && len(joined) > 0:
				require.True(t, table.Unregister(joined[0]))
				joined = joined[1:]
			}

			encodeTick(t, enc, table, observer, vp, true)
			testutil.ResetUpdates(table)

			requirePartition(t, vp)
			for slot := 1; slot < MaxSlots; slot++ {
				require.LessOrEqual(t, vp.Throttle(slot), uint8(throttleSelector),
					"tick %d slot %d: only the selector survives a tick", tick, slot)
			}
		}

		for _, p := range joined {
			table.Unregister(p)
		}
	}
}

// Scenario: a known slot changes hands between ticks under PartitionIntroduced.
func TestEncode_IntroducedPolicySlotReuse(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	woox := testutil.NewPlayer(t, "woox", nearSpawn(1, 0))
	table := testutil.NewPlayerTable(t, observer, woox)
	enc := NewEncoder(WithIntroducer(AddPlayerIntroducer{}))
	vp := NewViewport(PartitionIntroduced)

	_, frame := encodeTick(t, enc, table, observer, vp, true)
	require.Equal(t, 1, countAdded(frame))
	require.Equal(t, woox.ID(), vp.Introduced(woox.Index()))
	testutil.ResetUpdates(table)

	require.True(t, table.Unregister(woox))
	lynx := testutil.NewPlayer(t, "lynx", testutil.Fixtures.FarAway)
	slot, err := table.Register(lynx)
	require.NoError(t, err)
	require.Equal(t, 2, slot)
	require.True(t, lynx.PendingUpdates().Has(model.UpdateAppearance))

	_, frame = encodeTick(t, enc, table, observer, vp, true)
	assert.Empty(t, frame.Updates, "never-introduced occupant gets no known-slot update")
	assert.NotContains(t, vp.Known(), slot)
	assert.Zero(t, vp.Introduced(slot))

	// once in range, the new occupant is introduced like any candidate
	lynx.SetLocation(nearSpawn(2, 0))
	_, frame = encodeTick(t, enc, table, observer, vp, true)
	require.Len(t, frame.Updates, 1)
	u := frame.Updates[0]
	assert.True(t, u.Added)
	assert.Equal(t, slot, u.Slot)
	require.NotNil(t, u.Appearance)
	assert.Equal(t, "lynx", u.Appearance.Name)
	assert.Equal(t, lynx.ID(), vp.Introduced(slot))
}

func TestEncode_Idempotent(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	table := testutil.NewPlayerTable(t,
		observer,
		testutil.NewPlayer(t, "woox", nearSpawn(1, 0)),
		testutil.NewPlayer(t, "b0aty", nearSpawn(0, 1)),
		testutil.NewPlayer(t, "framed", testutil.Fixtures.FarAway),
	)
	testutil.ResetUpdates(table)

	enc := NewEncoder()
	vp := NewViewport(PartitionOccupancy)

	var payloads [][]byte
	for range 5 {
		pkt, _ := encodeTick(t, enc, table, observer, vp, false)
		payloads = append(payloads, pkt.Payload)
	}

	// once the parity rotation settles, nothing changes
	assert.Equal(t, payloads[2], payloads[3])
	assert.Equal(t, payloads[3], payloads[4])
}

func TestEncode_UnsupportedUpdate(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(1, 1))
	table := testutil.NewPlayerTable(t, observer, other)
	testutil.ResetUpdates(table)

	enc := NewEncoder()
	vp := NewViewport(PartitionOccupancy)
	encodeTick(t, enc, table, observer, vp, false)

	other.Flag(model.UpdateChat)
	_, err := enc.Encode(table, observer, vp)
	assert.ErrorIs(t, err, ErrUnsupportedUpdate)

	chat := DefaultRegistry()
	require.NoError(t, chat.Register(model.UpdateChat, func(dst *packet.Writer, _ model.Actor) error {
		return dst.WriteByte(0)
	}))
	withChat := NewEncoder(WithRegistry(chat))
	assert.Same(t, chat, withChat.Registry())

	vp.Reset()
	for range 2 {
		_, err = withChat.Encode(table, observer, vp)
		require.NoError(t, err)
	}
}

func TestEncode_AppearanceTooLarge(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(1, 1))
	table := testutil.NewPlayerTable(t, observer, other)

	a := other.Appearance()
	a.Name = strings.Repeat("x", MaxNameLength+1)
	other.SetAppearance(a)

	_, err := NewEncoder(WithIntroducer(AddPlayerIntroducer{})).Encode(table, observer, NewViewport(PartitionOccupancy))
	assert.ErrorIs(t, err, ErrAppearanceTooLarge)
}

func TestEncode_NulInNameFails(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "wo\x00ox", nearSpawn(1, 1))
	table := testutil.NewPlayerTable(t, observer, other)

	_, err := NewEncoder(WithIntroducer(AddPlayerIntroducer{})).Encode(table, observer, NewViewport(PartitionOccupancy))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestEncode_IntroducerError(t *testing.T) {
	observer := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	other := testutil.NewPlayer(t, "woox", nearSpawn(1, 1))
	table := testutil.NewPlayerTable(t, observer, other)

	enc := NewEncoder(WithIntroducer(IntroducerFunc(func(in *Introduction) (bool, error) {
		assert.Equal(t, observer.ID(), in.Observer.ID())
		assert.Equal(t, other.ID(), in.Actor.ID())
		return false, testutil.ErrSimulated
	})))

	_, err := enc.Encode(table, observer, NewViewport(PartitionOccupancy))
	assert.ErrorIs(t, err, testutil.ErrSimulated)
}

func TestEncode_NilObserver(t *testing.T) {
	table := world.NewPlayerTable()
	enc := NewEncoder()

	_, err := enc.Encode(table, nil, NewViewport(PartitionOccupancy))
	assert.ErrorIs(t, err, ErrNilObserver)

	unregistered := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	_, err = enc.Encode(table, unregistered, NewViewport(PartitionOccupancy))
	assert.ErrorIs(t, err, ErrNilObserver)
}

func TestEncode_SharedEncoderIsReentrant(t *testing.T) {
	var players []*model.Player
	for i := range 40 {
		players = append(players, testutil.NewPlayer(t, fmt.Sprintf("p%d", i), nearSpawn(int32(i%7), int32(i%5))))
	}
	table := testutil.NewPlayerTable(t, players...)
	enc := NewEncoder(WithIntroducer(AddPlayerIntroducer{}))

	sequential := make([][]byte, len(players))
	for i, p := range players {
		pkt, err := enc.Encode(table, p, NewViewport(PartitionOccupancy))
		require.NoError(t, err)
		sequential[i] = pkt.Payload
	}

	parallel := make([][]byte, len(players))
	errs := make([]error, len(players))
	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pkt, err := enc.Encode(table, p, NewViewport(PartitionOccupancy))
			parallel[i], errs[i] = pkt.Payload, err
		}()
	}
	wg.Wait()

	for i := range players {
		require.NoError(t, errs[i])
		assert.Equal(t, sequential[i], parallel[i], "observer %d", i)
	}
}
