package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // frame formats
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DirCamera exposes capture devices backed by directories.  Each
// sub-directory of Root is one device; a capture daemon drops frames into
// it as PNG or JPEG files and the newest file is the current frame.
// Removing the directory while a session holds it is reported as
// ErrDeviceLost.
type DirCamera struct {
	Root string
}

// Devices lists the sub-directories of Root in name order.  A missing
// root means no devices.
func (c DirCamera) Devices(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Device
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, dirDevice{id: e.Name(), path: filepath.Join(c.Root, e.Name())})
	}
	return out, nil
}

type dirDevice struct {
	id   string
	path string
}

func (d dirDevice) ID() string    { return d.id }
func (d dirDevice) Label() string { return "dir:" + d.path }

func (d dirDevice) Open(ctx context.Context) (FrameSource, error) {
	st, err := os.Stat(d.path)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.path)
	}
	return &dirSource{path: d.path}, nil
}

type dirSource struct {
	path string

	mu       sync.Mutex
	closed   bool
	lastName string
	lastMod  time.Time
}

func (s *dirSource) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("frame source closed")
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s removed", ErrDeviceLost, s.path)
		}
		return nil, err
	}
	var (
		newest  string
		newestT time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isFrameFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = e.Name(), info.ModTime()
		}
	}
	if newest == "" || (newest == s.lastName && newestT.Equal(s.lastMod)) {
		return nil, nil
	}

	f, err := os.Open(filepath.Join(s.path, newest))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", newest, err)
	}
	s.lastName, s.lastMod = newest, newestT
	return img, nil
}

func (s *dirSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func isFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
