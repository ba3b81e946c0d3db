package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshusa/battlerune-server/internal/gameserver/playersync"
	"github.com/nshusa/battlerune-server/internal/testutil"
	"github.com/nshusa/battlerune-server/internal/trace"
)

func writeTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.jsonl.zst")

	a := testutil.NewPlayer(t, "zezima", testutil.Fixtures.Spawn)
	b := testutil.NewPlayer(t, "woox", testutil.Fixtures.Spawn.Translate(1, 0))
	table := testutil.NewPlayerTable(t, a, b)
	enc := playersync.NewEncoder(playersync.WithIntroducer(playersync.AddPlayerIntroducer{}))

	rec, err := trace.Create(path, 3, true)
	require.NoError(t, err)
	vps := map[int]*playersync.Viewport{
		a.Index(): playersync.NewViewport(playersync.PartitionOccupancy),
		b.Index(): playersync.NewViewport(playersync.PartitionOccupancy),
	}
	for tick := uint64(1); tick <= 2; tick++ {
		for _, obs := range []int{a.Index(), b.Index()} {
			vp := vps[obs]
			snap := vp.Snapshot()
			pkt, err := enc.Encode(table, table.Get(obs), vp)
			require.NoError(t, err)
			require.NoError(t, rec.Record(trace.NewRecord(tick, table.Get(obs), snap, pkt)))
		}
		testutil.ResetUpdates(table)
	}
	require.NoError(t, rec.Close())
	return path
}

func TestDump(t *testing.T) {
	path := writeTrace(t)

	var out bytes.Buffer
	stats, err := dump(&out, path, dumpOptions{verbose: true})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.records)
	assert.Zero(t, stats.failed)
	assert.Equal(t, 2, stats.additions, "each player introduced to the other once")
	assert.Equal(t, 2, stats.updates)
	assert.Contains(t, out.String(), `appearance "woox"`)
	assert.Contains(t, out.String(), "tick 2 observer 2")
}

func TestDump_ObserverFilter(t *testing.T) {
	path := writeTrace(t)

	var out bytes.Buffer
	stats, err := dump(&out, path, dumpOptions{observer: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.records)
	assert.NotContains(t, out.String(), "observer 2")
}

func TestDump_MissingFile(t *testing.T) {
	_, err := dump(&bytes.Buffer{}, filepath.Join(t.TempDir(), "nope"), dumpOptions{})
	assert.Error(t, err)
}
