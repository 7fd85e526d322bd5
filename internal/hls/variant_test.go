package hls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmagar/epgrab/internal/testutil"
)

const masterURL = "https://cdn.example.com/show/master.m3u8?token=t"

const masterPlaylist = "#EXTM3U\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n" +
	"360/index.m3u8\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,FRAME-RATE=23.976\n" +
	"1080/index.m3u8\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
	"720/index.m3u8\n"

func TestVariants_SortedByBandwidth(t *testing.T) {
	fetcher := testutil.NewFetcher(map[string]string{masterURL: masterPlaylist})

	variants, master, err := Variants(context.Background(), fetcher, masterURL)
	require.NoError(t, err)
	require.True(t, master)
	require.Len(t, variants, 3)
	assert.Equal(t, 1080, variants[0].Height)
	assert.Equal(t, "https://cdn.example.com/show/1080/index.m3u8?token=t", variants[0].URL)
	assert.Equal(t, 360, variants[2].Height)
}

func TestChooseVariant_Fallbacks(t *testing.T) {
	variants := []Variant{{Height: 1080, Bandwidth: 5}, {Height: 720, Bandwidth: 3}, {Height: 360, Bandwidth: 1}}

	v, exact, err := ChooseVariant(variants, 720)
	require.NoError(t, err)
	assert.True(t, exact)
	assert.Equal(t, 720, v.Height)

	v, exact, err = ChooseVariant(variants, 480)
	require.NoError(t, err)
	assert.False(t, exact)
	assert.Equal(t, 360, v.Height)

	v, exact, err = ChooseVariant(variants, 240)
	require.NoError(t, err)
	assert.False(t, exact)
	assert.Equal(t, 1080, v.Height)

	v, _, err = ChooseVariant(variants, 0)
	require.NoError(t, err)
	assert.Equal(t, 1080, v.Height)

	_, _, err = ChooseVariant(nil, 720)
	assert.Error(t, err)
}

func TestResolveMediaURL_MediaPlaylistPassesThrough(t *testing.T) {
	mediaURL := "https://cdn.example.com/show/720/index.m3u8"
	fetcher := testutil.NewFetcher(map[string]string{
		mediaURL: "#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:6,\na.ts\n#EXT-X-ENDLIST\n",
	})

	got, height, err := ResolveMediaURL(context.Background(), fetcher, mediaURL, 1080)
	require.NoError(t, err)
	assert.Equal(t, mediaURL, got)
	assert.Equal(t, 0, height)
}

func TestFormatRes(t *testing.T) {
	assert.Equal(t, "4K", FormatRes(2160))
	assert.Equal(t, "720p", FormatRes(720))
	assert.Equal(t, "source", FormatRes(0))
}
