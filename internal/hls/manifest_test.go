package hls

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmagar/epgrab/internal/model"
	"github.com/jmagar/epgrab/internal/testutil"
)

const sourceURL = "https://cdn.example.com/show/ep1/index.m3u8?token=abc"

const encryptedPlaylist = "#EXTM3U\n" +
	"#EXT-X-VERSION:3\n" +
	"#EXT-X-TARGETDURATION:6\n" +
	"#EXT-X-MEDIA-SEQUENCE:0\n" +
	"#EXT-X-KEY:METHOD=AES-128,URI=\"https://keys.example.com/k?id=1\",IV=0x00000000000000000000000000000001\n" +
	"#EXT-X-CUSTOM-VENDOR:foo=bar\n" +
	"#EXTINF:6.0,\n" +
	"seg-0.ts\n" +
	"#EXTINF:6.0,\n" +
	"/abs/seg-1.ts?sig=zz\n" +
	"#EXT-X-KEY:METHOD=AES-128,URI=\"https://keys.example.com/k?id=1\",IV=0x00000000000000000000000000000002\n" +
	"#EXTINF:4.5,\n" +
	"https://other.example.com/seg-2.ts\n" +
	"#EXT-X-ENDLIST\n"

func TestParse_ClassifiesLines(t *testing.T) {
	m, err := Parse(encryptedPlaylist, sourceURL, "/ws/video", "Show 01")
	require.NoError(t, err)

	segs := m.VideoFiles()
	require.Len(t, segs, 3)
	assert.Equal(t, "https://cdn.example.com/show/ep1/seg-0.ts?token=abc", segs[0].URI)
	assert.Equal(t, "https://cdn.example.com/abs/seg-1.ts?sig=zz", segs[1].URI)
	assert.Equal(t, "https://other.example.com/seg-2.ts", segs[2].URI)
	for i, seg := range segs {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, model.SegmentPending, seg.Status)
		assert.Equal(t, filepath.Join("/ws/video", seg.Name), seg.Path)
	}
	assert.Equal(t, "Show 01_00000.ts", segs[0].Name)

	key := m.KeyFile()
	require.NotNil(t, key)
	assert.Equal(t, "AES-128", key.Method)
	assert.Equal(t, "https://keys.example.com/k?id=1", key.URI)
	assert.Equal(t, "Show 01.key", key.Name)
}

func TestParse_RewriteOnlyTouchesURIs(t *testing.T) {
	m, err := Parse(encryptedPlaylist, sourceURL, "/ws/video", "ep")
	require.NoError(t, err)

	want := strings.NewReplacer(
		"https://keys.example.com/k?id=1", "ep.key",
		"seg-0.ts\n", "ep_00000.ts\n",
		"/abs/seg-1.ts?sig=zz", "ep_00001.ts",
		"https://other.example.com/seg-2.ts", "ep_00002.ts",
	).Replace(encryptedPlaylist)
	assert.Equal(t, want, m.Rewritten())
	assert.Contains(t, m.Rewritten(), "#EXT-X-CUSTOM-VENDOR:foo=bar\n")
}

func TestParse_RewrittenReparsesToSameStructure(t *testing.T) {
	original, err := Parse(encryptedPlaylist, sourceURL, "/ws/video", "ep")
	require.NoError(t, err)

	again, err := Parse(original.Rewritten(), "file:///ws/video/ep.m3u8", "/ws/video", "ep")
	require.NoError(t, err)

	require.Len(t, again.VideoFiles(), len(original.VideoFiles()))
	for i, seg := range original.VideoFiles() {
		assert.Equal(t, seg.Name, again.VideoFiles()[i].Name)
		assert.Equal(t, "file:///ws/video/"+seg.Name, again.VideoFiles()[i].URI)
	}
	assert.Equal(t, original.Rewritten(), again.Rewritten())
}

func TestParse_PreservesCRLF(t *testing.T) {
	text := "#EXTM3U\r\n#EXTINF:2,\r\na.ts\r\n#EXT-X-ENDLIST\r\n"
	m, err := Parse(text, "https://cdn.example.com/p/index.m3u8", "/ws", "x")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\r\n#EXTINF:2,\r\nx_00000.ts\r\n#EXT-X-ENDLIST\r\n", m.Rewritten())
}

func TestParse_InitSectionIsASegment(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-MAP:URI=\"init.mp4\"\n#EXTINF:2,\nchunk1.m4s\n#EXT-X-ENDLIST\n"
	m, err := Parse(text, "https://cdn.example.com/p/index.m3u8", "/ws", "x")
	require.NoError(t, err)

	segs := m.VideoFiles()
	require.Len(t, segs, 2)
	assert.True(t, segs[0].Init)
	assert.Equal(t, "x_init00.mp4", segs[0].Name)
	assert.Equal(t, "x_00001.m4s", segs[1].Name)
	assert.Contains(t, m.Rewritten(), `#EXT-X-MAP:URI="x_init00.mp4"`)
}

func TestParse_RepeatedInitSectionIsFetchedOnce(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-MAP:URI=\"init.mp4\"\n#EXTINF:2,\nchunk1.m4s\n" +
		"#EXT-X-DISCONTINUITY\n#EXT-X-MAP:URI=\"init.mp4\"\n#EXTINF:2,\nchunk2.m4s\n#EXT-X-ENDLIST\n"
	m, err := Parse(text, "https://cdn.example.com/p/index.m3u8", "/ws", "ep")
	require.NoError(t, err)

	segs := m.VideoFiles()
	require.Len(t, segs, 3)
	assert.True(t, segs[0].Init)
	assert.False(t, segs[2].Init)
	assert.Equal(t, 2, strings.Count(m.Rewritten(), `#EXT-X-MAP:URI="ep_init00.mp4"`))
	assert.NoError(t, m.validate())
}

func TestParse_DistinctInitSectionsGetOwnNames(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-MAP:URI=\"init.mp4\"\n#EXTINF:2,\nchunk1.m4s\n" +
		"#EXT-X-DISCONTINUITY\n#EXT-X-MAP:URI=\"init2.mp4\"\n#EXTINF:2,\nchunk2.m4s\n#EXT-X-ENDLIST\n"
	m, err := Parse(text, "https://cdn.example.com/p/index.m3u8", "/ws", "ep")
	require.NoError(t, err)

	segs := m.VideoFiles()
	require.Len(t, segs, 4)
	assert.Equal(t, "ep_init00.mp4", segs[0].Name)
	assert.Equal(t, "ep_init01.mp4", segs[2].Name)
	assert.Equal(t, "https://cdn.example.com/p/init2.mp4", segs[2].URI)
	assert.Contains(t, m.Rewritten(), `#EXT-X-MAP:URI="ep_init01.mp4"`)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "\n\n"},
		{"missing header", "#EXTINF:2,\na.ts\n"},
		{"master playlist", "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nlow.m3u8\n"},
		{"no segments", "#EXTM3U\n#EXT-X-ENDLIST\n"},
		{"key without uri", "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128\n#EXTINF:2,\na.ts\n"},
		{"two keys", "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"k1\"\n#EXTINF:2,\na.ts\n#EXT-X-KEY:METHOD=AES-128,URI=\"k2\"\n#EXTINF:2,\nb.ts\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text, "https://cdn.example.com/index.m3u8", "/ws", "x")
			var perr *model.ManifestParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
		})
	}
}

func TestParse_MethodNoneKeepsLine(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-KEY:METHOD=NONE\n#EXTINF:2,\na.ts\n"
	m, err := Parse(text, "https://cdn.example.com/index.m3u8", "/ws", "x")
	require.NoError(t, err)
	assert.Nil(t, m.KeyFile())
	assert.Contains(t, m.Rewritten(), "#EXT-X-KEY:METHOD=NONE\n")
}

func TestParse_SourceNamingCollisionFailsFast(t *testing.T) {
	text := "#EXTM3U\n#EXTINF:2,\nhigh/seg.ts\n#EXTINF:2,\nlow/seg.ts\n"
	_, err := Parse(text, "https://cdn.example.com/index.m3u8", "/ws", "x", WithNaming(model.NamingSource))

	var perr *model.ManifestParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 5, perr.Line)
	assert.Contains(t, perr.Msg, "collides")
}

func TestParse_SourceNamingKeepsRemoteName(t *testing.T) {
	text := "#EXTM3U\n#EXTINF:2,\nseg-a.ts\n#EXTINF:2,\nseg-b.ts\n"
	m, err := Parse(text, "https://cdn.example.com/index.m3u8", "/ws", "x", WithNaming(model.NamingSource))
	require.NoError(t, err)
	assert.Equal(t, "seg-a.ts", m.VideoFiles()[0].Name)
	assert.Equal(t, "seg-b.ts", m.VideoFiles()[1].Name)
}

func TestLoad_UsesFinalURLAndWritesLocal(t *testing.T) {
	dir := t.TempDir()
	fetcher := testutil.NewFetcher(map[string]string{sourceURL: encryptedPlaylist})

	m, err := Load(context.Background(), sourceURL, dir, "ep", fetcher)
	require.NoError(t, err)
	assert.Equal(t, sourceURL, m.SourceURL)

	path, err := m.WriteLocal()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ep.m3u8"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.Rewritten(), string(data))
}

func TestLoad_NetworkErrorPropagates(t *testing.T) {
	fetcher := testutil.NewFetcher(nil)
	_, err := Load(context.Background(), sourceURL, t.TempDir(), "ep", fetcher)

	var netErr *model.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, 404, netErr.StatusCode)
}

func TestParseAttributes_QuotedCommas(t *testing.T) {
	attrs := parseAttributes(`METHOD=AES-128,URI="https://k.example.com/a,b",IV=0x01`)
	assert.Equal(t, "AES-128", attrs["METHOD"])
	assert.Equal(t, "https://k.example.com/a,b", attrs["URI"])
	assert.Equal(t, "0x01", attrs["IV"])
}
