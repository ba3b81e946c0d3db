package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nshusa/battlerune-server/internal/model"
	"github.com/nshusa/battlerune-server/internal/world"
)

// Fixtures содержит общие тестовые данные, чтобы не дублировать их в тестах.
var Fixtures = struct {
	// Spawn — точка появления всех тестовых игроков (Lumbridge).
	Spawn model.Location
	// FarAway лежит за пределами радиуса видимости от Spawn.
	FarAway model.Location
	// Names — валидные display name для тестовых игроков.
	Names []string
}{
	Spawn:   model.NewLocation(3222, 3218, 0),
	FarAway: model.NewLocation(3222+100, 3218, 0),
	Names:   []string{"zezima", "woox", "lynx titan", "b0aty", "framed"},
}

// NewPlayer creates an unregistered player with a fresh session id.
func NewPlayer(tb testing.TB, name string, loc model.Location) *model.Player {
	tb.Helper()

	p, err := model.NewPlayer(world.IDGenerator().Next(), name, loc)
	require.NoError(tb, err)
	return p
}

// NewPlayerTable registers players in order, so the i-th player gets slot i+1.
func NewPlayerTable(tb testing.TB, players ...*model.Player) *world.PlayerTable {
	tb.Helper()

	table := world.NewPlayerTable()
	for _, p := range players {
		_, err := table.Register(p)
		require.NoError(tb, err)
	}
	return table
}

// ResetUpdates clears pending updates of every registered player,
// the way the tick loop does after a broadcast.
func ResetUpdates(table *world.PlayerTable) {
	table.ForEach(func(p *model.Player) bool {
		p.ResetUpdates()
		return true
	})
}

// ErrSimulated is a sentinel error for testing error handling paths.
var ErrSimulated = errors.New("simulated error for testing")
