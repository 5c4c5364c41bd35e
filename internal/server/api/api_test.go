package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muralapp/mural/internal/server/api"
	"github.com/muralapp/mural/internal/server/store"
	"github.com/muralapp/mural/internal/wire"
)

type fixture struct {
	ts         *httptest.Server
	store      *store.Store
	storageDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.Migrate(sqlDB))
	st := store.New(sqlDB)

	storageDir := t.TempDir()
	r := chi.NewRouter()
	api.New(st, storageDir, 10).Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, store: st, storageDir: storageDir}
}

func (f *fixture) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func testState(nodeIDs ...string) wire.State {
	st := wire.State{Viewport: wire.Viewport{X: 1, Y: 2, Zoom: 1.25}}
	for i, id := range nodeIDs {
		st.Nodes = append(st.Nodes, wire.Node{
			ID:       id,
			URL:      fmt.Sprintf("/assets/img%d.png", i),
			Position: wire.Position{X: float64(i) * 400},
		})
	}
	return st
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/spaces/save", map[string]interface{}{
		"space_id": "garden",
		"state":    testState("img-1-aaaaaaaaa", "img-2-bbbbbbbbb"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	var got wire.State
	resp = f.get(t, "/spaces/load/garden")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &got)

	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "img-1-aaaaaaaaa", got.Nodes[0].ID)
	assert.InDelta(t, 1.25, got.Viewport.Zoom, 0.001)
}

func TestLoad_UnknownSpaceIs404(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/spaces/load/never-saved")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSave_NormalizesSpaceID(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/spaces/save", map[string]interface{}{
		"space_id": "My Garden!",
		"state":    testState("img-1-aaaaaaaaa"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = f.get(t, "/spaces/load/my-garden")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListSpaces(t *testing.T) {
	f := newFixture(t)

	var infos []wire.SpaceInfo
	resp := f.get(t, "/spaces")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &infos)
	assert.Empty(t, infos, "empty store lists as [], not null")

	f.postJSON(t, "/spaces/save", map[string]interface{}{"space_id": "a", "state": testState("img-1-aaaaaaaaa")}).Body.Close()
	f.postJSON(t, "/spaces/save", map[string]interface{}{"space_id": "b", "state": testState()}).Body.Close()

	resp = f.get(t, "/spaces")
	decodeInto(t, resp, &infos)
	require.Len(t, infos, 2)
}

func TestDeleteSpace(t *testing.T) {
	f := newFixture(t)

	f.postJSON(t, "/spaces/save", map[string]interface{}{"space_id": "doomed", "state": testState()}).Body.Close()

	resp := f.postJSON(t, "/spaces/delete", map[string]string{"space_id": "doomed"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.get(t, "/spaces/load/doomed")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.postJSON(t, "/spaces/delete", map[string]string{"space_id": "doomed"})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSpace_DefaultRejected(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/spaces/delete", map[string]string{"space_id": "default"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteImage(t *testing.T) {
	f := newFixture(t)

	f.postJSON(t, "/spaces/save", map[string]interface{}{
		"space_id": "garden",
		"state":    testState("img-1-aaaaaaaaa", "img-2-bbbbbbbbb"),
	}).Body.Close()

	resp := f.postJSON(t, "/spaces/delete-image", map[string]string{
		"space_id": "garden",
		"image_id": "img-1-aaaaaaaaa",
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got wire.State
	resp = f.get(t, "/spaces/load/garden")
	decodeInto(t, resp, &got)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "img-2-bbbbbbbbb", got.Nodes[0].ID)

	resp = f.postJSON(t, "/spaces/delete-image", map[string]string{
		"space_id": "garden",
		"image_id": "img-1-aaaaaaaaa",
	})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "already removed image is 404")
}

func TestDeleteImage_KeepsSpaceName(t *testing.T) {
	f := newFixture(t)

	f.postJSON(t, "/spaces/save", map[string]interface{}{
		"space_id": "garden",
		"name":     "My Garden",
		"state":    testState("img-1-aaaaaaaaa"),
	}).Body.Close()

	resp := f.postJSON(t, "/spaces/delete-image", map[string]string{
		"space_id": "garden",
		"image_id": "img-1-aaaaaaaaa",
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []wire.SpaceInfo
	resp = f.get(t, "/spaces")
	decodeInto(t, resp, &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, "My Garden", infos[0].Name, "nameless state write must not rename the space")
}

func TestMoveImage(t *testing.T) {
	f := newFixture(t)

	src := filepath.Join(t.TempDir(), "downloaded.png")
	require.NoError(t, os.WriteFile(src, []byte("png-bytes"), 0o644))

	var out struct {
		NewURL  string `json:"new_url"`
		NewPath string `json:"new_path"`
	}
	resp := f.postJSON(t, "/spaces/move-image", map[string]string{
		"space_id":    "garden",
		"source_path": src,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &out)

	assert.True(t, strings.HasPrefix(out.NewURL, "/assets/uploaded_downloaded_"))
	assert.FileExists(t, out.NewPath)
	assert.NoFileExists(t, src, "source is moved, not copied")

	resp = f.postJSON(t, "/spaces/move-image", map[string]string{
		"space_id":    "garden",
		"source_path": src,
	})
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "missing source is 404")
}

func TestUploadAndServeAsset(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "My Photo.PNG")
	require.NoError(t, err)
	_, err = fw.Write([]byte("image-data"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.ts.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		URL      string `json:"url"`
		Path     string `json:"path"`
		Filename string `json:"filename"`
	}
	decodeInto(t, resp, &out)

	assert.True(t, strings.HasPrefix(out.Filename, "uploaded_my-photo_"), "filename = %q", out.Filename)
	assert.True(t, strings.HasSuffix(out.Filename, ".png"))
	assert.FileExists(t, out.Path)

	resp = f.get(t, out.URL)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "image-data", string(body))
}

func TestServeAsset_TraversalBlocked(t *testing.T) {
	f := newFixture(t)

	outside := filepath.Join(filepath.Dir(f.storageDir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	resp := f.get(t, "/assets/..%2Fsecret.txt")
	defer func() { _ = resp.Body.Close() }()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestSave_MalformedBody(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.ts.URL+"/spaces/save", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestList_OrderedByRecency(t *testing.T) {
	f := newFixture(t)

	f.postJSON(t, "/spaces/save", map[string]interface{}{"space_id": "older", "state": testState()}).Body.Close()
	time.Sleep(5 * time.Millisecond)
	f.postJSON(t, "/spaces/save", map[string]interface{}{"space_id": "newer", "state": testState()}).Body.Close()

	var infos []wire.SpaceInfo
	resp := f.get(t, "/spaces")
	decodeInto(t, resp, &infos)
	require.Len(t, infos, 2)
	assert.Equal(t, "newer", infos[0].ID)
}
