package main

import (
	"bytes"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metatiled/internal/metatile"
	"metatiled/internal/protocol"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-10, 40.5,20,60")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-10, 40.5}, Max: orb.Point{20, 60}}, b)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "10,0,0,10"} {
		_, err := parseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestCoveringRequests(t *testing.T) {
	world, err := parseBBox("-180,-85,180,85")
	require.NoError(t, err)

	reqs := coveringRequests("osm", world, 0, 4, 8)
	perZoom := map[int]int{}
	for _, r := range reqs {
		perZoom[r.Z]++
		assert.Equal(t, "osm", r.Map)
		assert.Zero(t, r.X%8)
		assert.Zero(t, r.Y%8)
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1, 3: 1, 4: 4}, perZoom)

	// A point-sized box picks the single metatile holding it.
	berlin := orb.Bound{Min: orb.Point{13.4, 52.5}, Max: orb.Point{13.4, 52.5}}
	got := coveringRequests("osm", berlin, 10, 10, 8)
	assert.Equal(t, []protocol.RenderRequest{{Map: "osm", X: 544, Y: 328, Z: 10}}, got)
}

func TestTilePath(t *testing.T) {
	got := tilePath("/tiles", "osm", 0x12345, 0xABCDE, 20, 8)
	assert.Equal(t, filepath.FromSlash("/tiles/osm/"+metatile.HashPath(0x12340, 0xABCD8, 20)+".meta"), got)
}

func buildMetatile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(metatile.Magic)
	words := []int32{4, 8, 16, 5,
		52, 3,
		55, 0,
		55, 0,
		55, 2,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, words))
	buf.WriteString("abcde")
	return buf.Bytes()
}

func TestPrintMetatile(t *testing.T) {
	mt, err := metatile.ReadBytes(buildMetatile(t))
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, printMetatile(&out, mt))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "count=4 x=8 y=16 z=5", lines[0])
	assert.Equal(t, "   0 5/8/16 offset=52 length=3", lines[1])
	assert.Equal(t, "   1 5/8/17 offset=55 length=0", lines[2])
	assert.Equal(t, "   3 5/9/17 offset=55 length=2", lines[4])
}

func TestExtractTiles(t *testing.T) {
	mt, err := metatile.ReadBytes(buildMetatile(t))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, extractTiles(dir, mt))

	data, err := os.ReadFile(filepath.Join(dir, "5", "8", "16.png"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "5", "9", "17.png"))
	require.NoError(t, err)
	assert.Equal(t, "de", string(data))
	_, err = os.Stat(filepath.Join(dir, "5", "8", "17.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestCallbackHandler(t *testing.T) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	h := callbackHandler("s1", codeCh, errCh)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=bad&code=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualError(t, <-errCh, "invalid state")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s1&error=access_denied", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualError(t, <-errCh, "auth error: access_denied")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=c0de", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c0de", <-codeCh)
}
