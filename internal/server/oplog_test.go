package server

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stroke(n int) types.DrawCommand {
	return types.DrawCommand{
		RoomId:  "team-standup",
		From:    &types.Point{X: float64(n), Y: 0},
		To:      &types.Point{X: float64(n), Y: 1},
		Color:   strconv.Itoa(n),
		PenSize: 2,
	}
}

func appendN(l *OperationLog, from, to int) {
	for i := from; i <= to; i++ {
		l.Append(types.KindDrawing, stroke(i))
	}
}

func TestOperationLog_Append(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewOperationLog()
	l.now = func() time.Time { return now }

	entry := l.Append(types.KindShape, types.DrawCommand{
		RoomId: "team-standup",
		Start:  &types.Point{X: 1, Y: 2},
		End:    &types.Point{X: 3, Y: 4},
		Tool:   "rectangle",
	})

	assert.Equal(t, types.KindShape, entry.Kind)
	assert.Equal(t, now.UnixMilli(), entry.Timestamp)
	assert.True(t, strings.HasPrefix(entry.Id, strconv.FormatInt(now.UnixMilli(), 10)+"-"), "unexpected id %q", entry.Id)
	assert.Equal(t, "rectangle", entry.Tool)

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, entry, snap[0])
}

func TestOperationLog_UniqueIds(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewOperationLog()
	l.now = func() time.Time { return now }

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		e := l.Append(types.KindDrawing, stroke(i))
		_, dup := seen[e.Id]
		require.False(t, dup, "duplicate id %q", e.Id)
		seen[e.Id] = struct{}{}
	}
}

func TestOperationLog_Compaction(t *testing.T) {
	tcases := []struct {
		name    string
		appends int
		length  int
		oldest  int
		newest  int
	}{
		{
			name:    "at high water",
			appends: historyHighWater,
			length:  historyHighWater,
			oldest:  1,
			newest:  2000,
		},
		{
			name:    "first append past high water",
			appends: historyHighWater + 1,
			length:  historyLowWater,
			oldest:  1002,
			newest:  2001,
		},
		{
			// compaction only runs past the high water mark, so 2500
			// appends keep 1499 entries rather than 1000
			name:    "2500 appends keep 1499 entries, not 1000",
			appends: 2500,
			length:  1499,
			oldest:  1002,
			newest:  2500,
		},
		{
			name:    "second compaction",
			appends: 3002,
			length:  historyLowWater,
			oldest:  2003,
			newest:  3002,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewOperationLog()
			appendN(l, 1, tc.appends)

			snap := l.Snapshot()
			require.Len(t, snap, tc.length)
			assert.Equal(t, strconv.Itoa(tc.oldest), snap[0].Color, "unexpected oldest entry")
			assert.Equal(t, strconv.Itoa(tc.newest), snap[len(snap)-1].Color, "unexpected newest entry")

			for i := 1; i < len(snap); i++ {
				prev, _ := strconv.Atoi(snap[i-1].Color)
				cur, _ := strconv.Atoi(snap[i].Color)
				require.Equal(t, prev+1, cur, "entries out of order at %d", i)
			}
			assert.LessOrEqual(t, l.Len(), historyHighWater)
		})
	}
}

func TestOperationLog_SnapshotIsCopy(t *testing.T) {
	l := NewOperationLog()
	appendN(l, 1, 3)

	snap := l.Snapshot()
	snap[0].Color = "mutated"
	appendN(l, 4, 4)

	fresh := l.Snapshot()
	assert.Equal(t, "1", fresh[0].Color, "expected snapshot mutation not to leak into the log")
	assert.Len(t, snap, 3, "expected earlier snapshot to be unaffected by later appends")
	assert.Len(t, fresh, 4)
}

func TestOperationLog_Clear(t *testing.T) {
	l := NewOperationLog()
	appendN(l, 1, 10)
	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())

	e := l.Append(types.KindDrawing, stroke(11))
	require.Equal(t, 1, l.Len())
	assert.Equal(t, e, l.Snapshot()[0])
}
