package server

import (
	"fmt"
	"time"

	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/teris-io/shortid"
)

const (
	// historyHighWater is the log length above which the log is compacted.
	historyHighWater = 2000
	// historyLowWater is the number of most recent entries kept by a compaction.
	historyLowWater = 1000
)

// OperationLog is the bounded, append-only drawing history of a single room.
// It is not safe for concurrent use; the registry serializes access to it.
type OperationLog struct {
	entries   []types.Entry
	highWater int
	lowWater  int
	now       func() time.Time
}

func NewOperationLog() *OperationLog {
	return &OperationLog{
		highWater: historyHighWater,
		lowWater:  historyLowWater,
		now:       time.Now,
	}
}

// Append stamps cmd with a sequence id and the server time and stores it.
func (l *OperationLog) Append(kind types.EntryKind, cmd types.DrawCommand) types.Entry {
	ts := l.now()
	entry := types.Entry{
		Kind:        kind,
		Id:          newSequenceId(ts),
		Timestamp:   ts.UnixMilli(),
		DrawCommand: cmd,
	}

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.highWater {
		l.compact()
	}

	return entry
}

// compact drops the oldest entries so that only lowWater remain. The
// survivors are copied into a fresh slice so the dropped prefix can be freed.
func (l *OperationLog) compact() {
	keep := make([]types.Entry, l.lowWater, l.highWater+1)
	copy(keep, l.entries[len(l.entries)-l.lowWater:])
	l.entries = keep
}

// Snapshot returns a copy of the log in append order.
func (l *OperationLog) Snapshot() []types.Entry {
	out := make([]types.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *OperationLog) Clear() {
	l.entries = nil
}

func (l *OperationLog) Len() int {
	return len(l.entries)
}

func newSequenceId(ts time.Time) string {
	suffix, err := shortid.Generate()
	if err != nil {
		// shortid only fails on a broken entropy source
		suffix = fmt.Sprintf("%x", ts.UnixNano())
	}
	return fmt.Sprintf("%d-%s", ts.UnixMilli(), suffix)
}
