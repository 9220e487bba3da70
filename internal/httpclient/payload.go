package httpclient

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Payload is the test image uploaded by every request. It is read-only once
// loaded and shared by all concurrent executions.
type Payload struct {
	Name        string
	ContentType string
	Data        []byte
}

// PayloadSource loads the payload once per sweep.
type PayloadSource interface {
	Load() (Payload, error)
}

// FilePayload reads the payload from disk.
type FilePayload struct {
	Path string
}

// Load reads the file and detects its content type from the extension,
// falling back to content sniffing.
func (f FilePayload) Load() (Payload, error) {
	path := strings.TrimSpace(f.Path)
	if path == "" {
		return Payload{}, errors.New("payload path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Payload{}, fmt.Errorf("payload file: %w", err)
	}
	if info.IsDir() {
		return Payload{}, fmt.Errorf("payload file %q is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("payload file: %w", err)
	}
	return NewPayload(filepath.Base(path), data), nil
}

// InlinePayload serves an in-memory payload.
type InlinePayload Payload

// Load returns the inline payload.
func (p InlinePayload) Load() (Payload, error) {
	if len(p.Data) == 0 {
		return Payload{}, errors.New("payload is empty")
	}
	return Payload(p), nil
}

// NewPayload builds a payload, detecting the content type.
func NewPayload(name string, data []byte) Payload {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return Payload{Name: name, ContentType: contentType, Data: data}
}
