package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFakeClock_StartsAtEpoch(t *testing.T) {
	clk := NewFakeClock()
	assert.True(t, clk.Now().Equal(Epoch))
}

func TestTicks_MatchFakeClock(t *testing.T) {
	clk := NewFakeClock()

	var got []time.Time
	stop := clk.Every(time.Second, func(at time.Time) { got = append(got, at) })
	defer stop()

	clk.Advance(3 * time.Second)
	assert.Equal(t, Ticks(time.Second, 3), got)
}

func TestChanDispatcher_RunsOnCaller(t *testing.T) {
	d := NewChanDispatcher(1)

	ran := false
	go d.Dispatch(func() { ran = true })

	d.RunNext(t, time.Second)
	assert.True(t, ran)
	assert.Equal(t, 0, d.Pending())
}

func TestWriteFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "nested/user.cue", `theme: "dark"`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `theme: "dark"`, string(data))
}
