package mux

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	ms, ok := parseDuration("  Duration: 00:23:41.02, start: 1.400000, bitrate: N/A")
	require.True(t, ok)
	assert.Equal(t, int64(23*60*1000+41020), ms)

	_, ok = parseDuration("  Duration: N/A, bitrate: N/A")
	assert.False(t, ok)
}

func TestParseStats(t *testing.T) {
	elapsed, rate, ok := parseStats("frame= 1234 fps=0.0 q=-1.0 size=   10240kB time=00:01:02.50 bitrate=1342.2kbits/s speed=24.9x")
	require.True(t, ok)
	assert.Equal(t, int64(62500), elapsed)
	assert.InDelta(t, 24.9, rate, 0.0001)

	elapsed, rate, ok = parseStats("size=       0kB time=-00:00:00.04 bitrate=N/A speed=N/A")
	require.True(t, ok)
	assert.Zero(t, elapsed)
	assert.Zero(t, rate)

	_, _, ok = parseStats("size=N/A time=N/A bitrate=N/A speed=N/A")
	assert.False(t, ok)
	_, _, ok = parseStats("Stream mapping:")
	assert.False(t, ok)
}

func TestScanLines_SplitsCarriageReturns(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\rb\r\nc\nd"))
	sc.Split(scanLines)
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	assert.Equal(t, []string{"a", "b", "", "c", "d"}, got)
}

func TestIsNoisy(t *testing.T) {
	assert.True(t, isNoisy("[hls @ 0x5581] Opening 'ep_00001.ts' for reading"))
	assert.True(t, isNoisy("Press [q] to stop, [?] for help"))
	assert.False(t, isNoisy("Invalid data found when processing input"))
}

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)
	assert.Empty(t, r.Lines())
	r.Add("1")
	r.Add("2")
	assert.Equal(t, []string{"1", "2"}, r.Lines())
	r.Add("3")
	r.Add("4")
	r.Add("5")
	assert.Equal(t, []string{"3", "4", "5"}, r.Lines())
}
