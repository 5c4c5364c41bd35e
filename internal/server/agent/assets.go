package agent

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// freshWindow bounds how old a file may be and still count as produced
// by the current turn, covering agents that write assets just before
// the prompt is acknowledged.
const freshWindow = 30 * time.Second

// mediaExts are the asset file types the agent may generate.
var mediaExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".mp4":  true,
	".webm": true,
	".mp3":  true,
	".wav":  true,
}

// assetScanner detects files the agent materializes in the storage
// dir. Each file is announced at most once per process lifetime.
type assetScanner struct {
	dir     string
	baseURL string

	mu   sync.Mutex
	seen map[string]bool
}

func newAssetScanner(dir, baseURL string) *assetScanner {
	return &assetScanner{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		seen:    make(map[string]bool),
	}
}

// newAssets returns URLs for media files modified after since (with a
// slack window) that have not been announced before, oldest first.
func (s *assetScanner) newAssets(since time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	cutoff := since.Add(-freshWindow)

	type found struct {
		name string
		mod  time.Time
	}
	var fresh []found

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || !mediaExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if s.seen[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		s.seen[e.Name()] = true
		fresh = append(fresh, found{name: e.Name(), mod: info.ModTime()})
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].mod.Before(fresh[j].mod) })

	urls := make([]string, 0, len(fresh))
	for _, f := range fresh {
		urls = append(urls, s.baseURL+"/"+path.Base(f.name))
	}
	return urls, nil
}
