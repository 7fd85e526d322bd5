package episode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmagar/epgrab/internal/model"
	"github.com/jmagar/epgrab/internal/testutil"
)

const master = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=4000000,RESOLUTION=1920x1080
1080b/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
720/index.m3u8
`

func TestParseSubtitleSource(t *testing.T) {
	src, err := ParseSubtitleSource("subs/ep.ass,lang=eng,locale=en-US,title=English,default")
	require.NoError(t, err)
	assert.Equal(t, SubtitleSource{Location: "subs/ep.ass", Language: "eng", Locale: "en-US", Title: "English", Default: true}, src)

	src, err = ParseSubtitleSource("https://x.example.com/de.vtt")
	require.NoError(t, err)
	assert.Equal(t, "https://x.example.com/de.vtt", src.Location)
	assert.False(t, src.Default)

	_, err = ParseSubtitleSource(",lang=eng")
	var userErr *model.UserInputError
	require.ErrorAs(t, err, &userErr)

	_, err = ParseSubtitleSource("a.ass,colour=red")
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, err.Error(), "colour")
}

func TestNewStatic_RejectsTwoDefaults(t *testing.T) {
	_, err := NewStatic("https://x/master.m3u8", model.Metadata{}, []string{"a.ass,default", "b.ass,default"}, testutil.NewFetcher(nil))
	var userErr *model.UserInputError
	require.ErrorAs(t, err, &userErr)

	_, err = NewStatic("", model.Metadata{}, nil, testutil.NewFetcher(nil))
	require.ErrorAs(t, err, &userErr)
}

func TestStatic_Resolutions(t *testing.T) {
	const url = "https://cdn.example.com/show/master.m3u8"
	f := testutil.NewFetcher(map[string]string{url: master})
	ep, err := NewStatic(url, model.Metadata{Title: "Pilot"}, nil, f)
	require.NoError(t, err)

	heights, err := ep.Resolutions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []int{1080, 720, 360}, heights)

	_, err = ep.Resolutions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Calls(url), "variants are fetched once")

	streams, err := ep.Streams(context.Background(), "", 720)
	require.NoError(t, err)
	assert.Equal(t, []model.Stream{{URL: url, Height: 720}}, streams)
	assert.False(t, ep.Blocked().Any())
	assert.Equal(t, "Pilot", ep.Metadata().Title)
}

func TestStatic_MediaPlaylistHasUnknownHeight(t *testing.T) {
	const url = "https://cdn.example.com/show/index.m3u8"
	f := testutil.NewFetcher(map[string]string{url: "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\na.ts\n"})
	ep, err := NewStatic(url, model.Metadata{}, nil, f)
	require.NoError(t, err)

	heights, err := ep.Resolutions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, heights)
}

func TestStatic_Subtitles(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "ep.en.ass")
	require.NoError(t, os.WriteFile(local, []byte("[Script Info]\n"), 0o644))
	const remote = "https://subs.example.com/ep/de.vtt?sig=1"
	f := testutil.NewFetcher(map[string]string{remote: "WEBVTT\n"})

	ep, err := NewStatic("https://x/master.m3u8", model.Metadata{}, []string{
		local + ",lang=eng,locale=en-US,default",
		remote + ",lang=ger,title=Deutsch",
	}, f)
	require.NoError(t, err)

	subs, err := ep.Subtitles(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, model.Subtitle{Locale: "en-US", Language: "eng", Title: "eng", Default: true, Format: "ass", Data: []byte("[Script Info]\n")}, subs[0])
	assert.Equal(t, "vtt", subs[1].Format)
	assert.Equal(t, "Deutsch", subs[1].Title)
	assert.Equal(t, "WEBVTT\n", string(subs[1].Data))
}

func TestStatic_MissingSubtitleFile(t *testing.T) {
	ep, err := NewStatic("https://x/master.m3u8", model.Metadata{}, []string{filepath.Join(t.TempDir(), "nope.ass")}, testutil.NewFetcher(nil))
	require.NoError(t, err)
	_, err = ep.Subtitles(context.Background())
	var userErr *model.UserInputError
	require.ErrorAs(t, err, &userErr)
}
