package device

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// exclusive hands out one acquisition at a time.
type exclusive struct {
	mu    sync.Mutex
	inUse bool
}

func (e *exclusive) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inUse {
		return fmt.Errorf("microphone in use: %w", domain.ErrBusy)
	}
	e.inUse = true
	return nil
}

func (e *exclusive) release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inUse {
		return fmt.Errorf("microphone released twice")
	}
	e.inUse = false
	return nil
}

// FileMicrophone "records" the audio file at Path. The terminal chat uses
// it to feed prerecorded clips through the capture flow.
type FileMicrophone struct {
	lock exclusive
	mu   sync.Mutex
	path string
}

func NewFileMicrophone(path string) *FileMicrophone {
	return &FileMicrophone{path: path}
}

// SetPath points the next recording at another file.
func (m *FileMicrophone) SetPath(path string) {
	m.mu.Lock()
	m.path = path
	m.mu.Unlock()
}

func (m *FileMicrophone) Open(ctx context.Context) (domain.AudioCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	if err := m.lock.acquire(); err != nil {
		return nil, err
	}
	return &fileCapture{path: path, lock: &m.lock}, nil
}

type fileCapture struct {
	path string
	lock *exclusive
}

func (c *fileCapture) Stop() ([]byte, string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, "", fmt.Errorf("read audio file: %w", err)
	}
	return data, audioMIME(c.path), nil
}

var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
}

func audioMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (c *fileCapture) Release() error {
	return c.lock.release()
}

// StaticMicrophone returns fixed audio, for uploads that arrive whole.
type StaticMicrophone struct {
	lock     exclusive
	audio    []byte
	mimeType string
}

func NewStaticMicrophone(audio []byte, mimeType string) *StaticMicrophone {
	return &StaticMicrophone{audio: audio, mimeType: mimeType}
}

func (m *StaticMicrophone) Open(ctx context.Context) (domain.AudioCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.lock.acquire(); err != nil {
		return nil, err
	}
	return &staticCapture{m: m}, nil
}

type staticCapture struct {
	m *StaticMicrophone
}

func (c *staticCapture) Stop() ([]byte, string, error) {
	return c.m.audio, c.m.mimeType, nil
}

func (c *staticCapture) Release() error {
	return c.m.lock.release()
}
