package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waoai/confidis/internal/graph"
)

func testCommands(n int) []graph.Command {
	cmds := make([]graph.Command, n)
	for i := range cmds {
		cmds[i] = graph.Command{
			Kind:     graph.CmdSet,
			Source:   "s1",
			Question: "q1",
			Answer:   "a",
		}
	}
	return cmds
}

func closeLog(t *testing.T, l *Log) {
	t.Helper()
	if err := l.Close(); err != nil {
		t.Logf("walog close: %v", err)
	}
}

func TestAppendAndRecover(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(nil, dir, 0)
	require.NoError(t, err)

	cmds := testCommands(5)
	for _, c := range cmds {
		_, err := l.Append(c)
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	l2, err := Open(nil, dir, 0)
	require.NoError(t, err)
	defer closeLog(t, l2)

	recovered, err := l2.Recover()
	require.NoError(t, err)
	assert.Len(t, recovered, 5)
	for i, c := range recovered {
		assert.Equal(t, cmds[i].Kind, c.Kind)
		assert.Equal(t, cmds[i].Source, c.Source)
		assert.Equal(t, cmds[i].Question, c.Question)
	}
}

func TestAppendAssignsIncreasingSequenceNumbers(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(nil, dir, 0)
	require.NoError(t, err)
	defer closeLog(t, l)

	seq0, err := l.Append(testCommands(1)[0])
	require.NoError(t, err)
	seq1, err := l.Append(testCommands(1)[0])
	require.NoError(t, err)
	assert.Equal(t, seq0+1, seq1)
}

func TestRecoverEmptyDirReturnsNothing(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(nil, dir, 0)
	require.NoError(t, err)
	defer closeLog(t, l)

	recovered, err := l.Recover()
	require.NoError(t, err)
	assert.Empty(t, recovered)
}

func TestRotationAcrossMultipleSegments(t *testing.T) {
	dir := t.TempDir()
	// Tiny segment size forces rotation after a couple of records.
	l, err := Open(nil, dir, headerSize+2*(recordHeadSize+crcSize+64))
	require.NoError(t, err)

	cmds := testCommands(20)
	for _, c := range cmds {
		_, err := l.Append(c)
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	assert.Greater(t, l.SegmentCount(), 1, "small segment size should force rotation")

	l2, err := Open(nil, dir, 0)
	require.NoError(t, err)
	defer closeLog(t, l2)

	recovered, err := l2.Recover()
	require.NoError(t, err)
	assert.Len(t, recovered, 20, "recovery must span every rotated segment in order")
}

func TestRecoverStopsAtCorruptTail(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(nil, dir, 0)
	require.NoError(t, err)

	cmds := testCommands(3)
	for _, c := range cmds {
		_, err := l.Append(c)
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	segPath := filepath.Join(dir, entries[0].Name())

	f, err := os.OpenFile(segPath, os.O_RDWR, 0o600)
	require.NoError(t, err)
	// Truncate the last few bytes to simulate a crash mid-write to the tail.
	info, err := f.Stat()
	require.NoError(t, err)
	require.NoError(t, f.Truncate(info.Size()-3))
	require.NoError(t, f.Close())

	l2, err := Open(nil, dir, 0)
	require.NoError(t, err)
	defer closeLog(t, l2)

	recovered, err := l2.Recover()
	require.NoError(t, err)
	assert.Len(t, recovered, 2, "truncated trailing record should be dropped, not fail recovery")
}

func TestOpenCreatesDirIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "wal")
	l, err := Open(nil, dir, 0)
	require.NoError(t, err)
	defer closeLog(t, l)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
