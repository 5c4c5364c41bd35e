// Package spaces is the HTTP client for the space persistence gateway.
// It supplies the canonical snapshots the canvas store diffs against
// and persists canvas state per named space.
package spaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muralapp/mural/internal/wire"
)

// ErrDefaultSpace is returned for attempts to delete the default
// space. The guard runs locally, before any request is issued.
var ErrDefaultSpace = errors.New("the default space cannot be deleted")

// Client talks to the Mural server's spaces API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a gateway client for the given server base URL
// (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Load fetches a space's canvas state. A space that does not exist yet
// is not an error: found is false and the caller starts from an empty
// canvas.
func (c *Client) Load(ctx context.Context, spaceID string) (state wire.State, found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/spaces/load/"+url.PathEscape(spaceID), nil)
	if err != nil {
		return wire.State{}, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wire.State{}, false, fmt.Errorf("load space %q: %w", spaceID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return wire.State{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return wire.State{}, false, fmt.Errorf("load space %q: unexpected status %d", spaceID, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return wire.State{}, false, fmt.Errorf("load space %q: decode: %w", spaceID, err)
	}
	if state.Viewport.Zoom == 0 {
		state.Viewport = wire.DefaultViewport()
	}
	return state, true, nil
}

// Save persists a space's canvas state.
func (c *Client) Save(ctx context.Context, spaceID string, state wire.State) error {
	body := struct {
		SpaceID string     `json:"space_id"`
		State   wire.State `json:"state"`
	}{SpaceID: spaceID, State: state}

	return c.postJSON(ctx, "/spaces/save", body, nil)
}

// List returns all known spaces, most recently saved first.
func (c *Client) List(ctx context.Context) ([]wire.SpaceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/spaces", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list spaces: unexpected status %d", resp.StatusCode)
	}

	var infos []wire.SpaceInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("list spaces: decode: %w", err)
	}
	return infos, nil
}

// Delete removes a space. Deleting the default space is rejected
// locally with ErrDefaultSpace.
func (c *Client) Delete(ctx context.Context, spaceID string) error {
	if spaceID == wire.DefaultSpace {
		return ErrDefaultSpace
	}
	body := struct {
		SpaceID string `json:"space_id"`
	}{SpaceID: spaceID}
	return c.postJSON(ctx, "/spaces/delete", body, nil)
}

// DeleteImage removes a single image node from a persisted space.
func (c *Client) DeleteImage(ctx context.Context, spaceID, imageID string) error {
	body := struct {
		SpaceID string `json:"space_id"`
		ImageID string `json:"image_id"`
	}{SpaceID: spaceID, ImageID: imageID}
	return c.postJSON(ctx, "/spaces/delete-image", body, nil)
}

// MoveImage relocates an asset file into a space's asset directory and
// returns its new URL and path.
func (c *Client) MoveImage(ctx context.Context, spaceID, sourcePath string) (newURL, newPath string, err error) {
	body := struct {
		SpaceID    string `json:"space_id"`
		SourcePath string `json:"source_path"`
	}{SpaceID: spaceID, SourcePath: sourcePath}

	var out struct {
		NewURL  string `json:"new_url"`
		NewPath string `json:"new_path"`
	}
	if err := c.postJSON(ctx, "/spaces/move-image", body, &out); err != nil {
		return "", "", err
	}
	return out.NewURL, out.NewPath, nil
}

// UploadResult describes a file accepted by the server.
type UploadResult struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// Upload sends a local file (e.g. one dragged onto the canvas) to the
// server's asset store.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("upload %q: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload %q: %w", filename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, fmt.Errorf("upload %q: unexpected status %d", filename, resp.StatusCode)
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResult{}, fmt.Errorf("upload %q: decode: %w", filename, err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: unexpected status %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("POST %s: decode: %w", path, err)
		}
	}
	return nil
}
