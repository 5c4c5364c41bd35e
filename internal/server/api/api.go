// Package api implements the spaces persistence HTTP surface: space
// CRUD, image bookkeeping, uploads, and static asset serving.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/muralapp/mural/internal/metrics"
	"github.com/muralapp/mural/internal/server/store"
	"github.com/muralapp/mural/internal/util/sanitize"
	"github.com/muralapp/mural/internal/wire"
)

// Handler serves the spaces REST API.
type Handler struct {
	store          *store.Store
	storageDir     string
	maxUploadBytes int64
}

// New creates the API handler. storageDir is where uploaded and
// generated assets live; it backs the /assets/ static routes.
func New(st *store.Store, storageDir string, maxUploadMB int64) *Handler {
	return &Handler{
		store:          st,
		storageDir:     storageDir,
		maxUploadBytes: maxUploadMB << 20,
	}
}

// Routes mounts every API route on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/spaces", h.listSpaces)
	r.Get("/spaces/load/{spaceID}", h.loadSpace)
	r.Post("/spaces/save", h.saveSpace)
	r.Post("/spaces/delete", h.deleteSpace)
	r.Post("/spaces/delete-image", h.deleteImage)
	r.Post("/spaces/move-image", h.moveImage)
	r.Post("/upload", h.upload)
	r.Get("/assets/*", h.serveAsset)
}

func (h *Handler) listSpaces(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.List(r.Context())
	if err != nil {
		h.serverError(w, "list spaces", err)
		return
	}
	if infos == nil {
		infos = []wire.SpaceInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) loadSpace(w http.ResponseWriter, r *http.Request) {
	spaceID := sanitize.SpaceID(chi.URLParam(r, "spaceID"))

	state, err := h.store.Get(r.Context(), spaceID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.SpaceLoadsTotal.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	if err != nil {
		metrics.SpaceLoadsTotal.WithLabelValues("error").Inc()
		h.serverError(w, "load space", err)
		return
	}
	metrics.SpaceLoadsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) saveSpace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpaceID string     `json:"space_id"`
		Name    string     `json:"name"`
		State   wire.State `json:"state"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	spaceID := sanitize.SpaceID(req.SpaceID)

	if err := h.store.Upsert(r.Context(), spaceID, req.Name, req.State); err != nil {
		metrics.SpaceSavesTotal.WithLabelValues("error").Inc()
		h.serverError(w, "save space", err)
		return
	}
	metrics.SpaceSavesTotal.WithLabelValues("ok").Inc()
	slog.Debug("space saved", "space", spaceID, "nodes", len(req.State.Nodes))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) deleteSpace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpaceID string `json:"space_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	spaceID := sanitize.SpaceID(req.SpaceID)

	// Clients guard this locally too; the server is the backstop.
	if spaceID == wire.DefaultSpace {
		writeError(w, http.StatusBadRequest, "the default space cannot be deleted")
		return
	}

	err := h.store.Delete(r.Context(), spaceID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	if err != nil {
		h.serverError(w, "delete space", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpaceID string `json:"space_id"`
		ImageID string `json:"image_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	spaceID := sanitize.SpaceID(req.SpaceID)

	state, err := h.store.Get(r.Context(), spaceID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	if err != nil {
		h.serverError(w, "load space", err)
		return
	}

	kept := state.Nodes[:0]
	var removed *wire.Node
	for i := range state.Nodes {
		if state.Nodes[i].ID == req.ImageID {
			removed = &state.Nodes[i]
			continue
		}
		kept = append(kept, state.Nodes[i])
	}
	if removed == nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	state.Nodes = kept

	if err := h.store.Upsert(r.Context(), spaceID, "", state); err != nil {
		h.serverError(w, "save space", err)
		return
	}
	h.removeAssetFile(removed)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// moveImage relocates an asset file (typically from a desktop
// download dir) into the storage dir so /assets/ can serve it.
func (h *Handler) moveImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpaceID    string `json:"space_id"`
		SourcePath string `json:"source_path"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SourcePath == "" {
		writeError(w, http.StatusBadRequest, "source_path is required")
		return
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		writeError(w, http.StatusNotFound, "source file not found")
		return
	}

	base := filepath.Base(req.SourcePath)
	name := storedFilename(base)
	dest := filepath.Join(h.storageDir, name)

	if err := moveFile(req.SourcePath, dest); err != nil {
		h.serverError(w, "move asset", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"new_url":  "/assets/" + name,
		"new_path": dest,
	})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	name := storedFilename(header.Filename)
	dest := filepath.Join(h.storageDir, name)

	out, err := os.Create(dest)
	if err != nil {
		h.serverError(w, "create upload file", err)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		h.serverError(w, "write upload file", err)
		return
	}
	if err := out.Close(); err != nil {
		h.serverError(w, "close upload file", err)
		return
	}

	slog.Info("file uploaded", "filename", name, "size", header.Size)
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      "/assets/" + name,
		"path":     dest,
		"filename": name,
	})
}

func (h *Handler) serveAsset(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")

	// Resolve inside the storage dir only; a crafted ../ path must not
	// escape it.
	full := filepath.Join(h.storageDir, filepath.Clean("/"+rel))
	if !strings.HasPrefix(full, filepath.Clean(h.storageDir)+string(os.PathSeparator)) {
		writeError(w, http.StatusBadRequest, "invalid asset path")
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	http.ServeFile(w, r, full)
}

// removeAssetFile deletes the on-disk file behind a removed node, but
// only when it actually lives in the storage dir.
func (h *Handler) removeAssetFile(n *wire.Node) {
	if n.Path == "" {
		return
	}
	full := filepath.Clean(n.Path)
	if !strings.HasPrefix(full, filepath.Clean(h.storageDir)+string(os.PathSeparator)) {
		return
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove asset file", "path", full, "error", err)
	}
}

// storedFilename builds the storage-dir name for an incoming file:
// uploaded_<stem>_<timestamp><ext>, with the stem slugged so the name
// is filesystem and URL safe.
func storedFilename(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	stem := sanitize.SpaceID(strings.TrimSuffix(original, filepath.Ext(original)))
	return fmt.Sprintf("uploaded_%s_%d%s", stem, time.Now().UnixMilli(), ext)
}

func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy+remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}
