package httpclient

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilePayloadLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retina.png")
	data := []byte("\x89PNG\r\n\x1a\nimage")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	payload, err := FilePayload{Path: path}.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if payload.Name != "retina.png" {
		t.Errorf("Name = %q", payload.Name)
	}
	if payload.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", payload.ContentType)
	}
	if string(payload.Data) != string(data) {
		t.Errorf("Data mismatch")
	}
}

func TestFilePayloadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "empty path", path: "", want: "required"},
		{name: "missing file", path: filepath.Join(dir, "nope.png"), want: "payload file"},
		{name: "directory", path: dir, want: "directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FilePayload{Path: tt.path}.Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewPayloadSniffsUnknownExtension(t *testing.T) {
	payload := NewPayload("image.unknownext", []byte("\x89PNG\r\n\x1a\nrest"))
	if payload.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", payload.ContentType)
	}
}

func TestInlinePayload(t *testing.T) {
	if _, err := (InlinePayload{}).Load(); err == nil {
		t.Fatalf("expected error for empty inline payload")
	}
	p, err := InlinePayload(NewPayload("a.png", []byte("x"))).Load()
	if err != nil || p.Name != "a.png" {
		t.Fatalf("Load() = %+v, %v", p, err)
	}
}
