package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/torosent/sweepfire/internal/auth"
)

// DefaultFileField is the multipart field carrying the image.
const DefaultFileField = "file"

// RequestBuilder builds one multipart upload request per call. The
// multipart body of a payload is encoded once and shared by every request.
type RequestBuilder struct {
	target  string
	field   string
	headers http.Header

	mu     sync.Mutex
	upload *encodedUpload
}

// payloadKey identifies a payload by its backing array, not its contents.
type payloadKey struct {
	data        *byte
	size        int
	name        string
	contentType string
}

func keyOf(p Payload) payloadKey {
	k := payloadKey{size: len(p.Data), name: p.Name, contentType: p.ContentType}
	if len(p.Data) > 0 {
		k.data = &p.Data[0]
	}
	return k
}

type encodedUpload struct {
	key         payloadKey
	body        []byte
	contentType string
}

// NewRequestBuilder validates the target and extra headers.
func NewRequestBuilder(target, field string, headers map[string]string) (*RequestBuilder, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q", target)
	}

	field = strings.TrimSpace(field)
	if field == "" {
		field = DefaultFileField
	}

	hdrs := http.Header{}
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		hdrs.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		target:  u.String(),
		field:   field,
		headers: hdrs,
	}, nil
}

// Target returns the URL requests are sent to.
func (b *RequestBuilder) Target() string {
	if b == nil {
		return ""
	}
	return b.target
}

// Build encodes payload as multipart/form-data and attaches the credential.
func (b *RequestBuilder) Build(ctx context.Context, cred auth.Credential, payload Payload) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	upload, err := b.encoded(payload)
	if err != nil {
		return nil, err
	}
	body := upload.body

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	req.Header.Set("Content-Type", upload.contentType)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	cred.Apply(req)

	return req, nil
}

// encoded returns the multipart body of payload, encoding it on first use.
func (b *RequestBuilder) encoded(payload Payload) (*encodedUpload, error) {
	key := keyOf(payload)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.upload != nil && b.upload.key == key {
		return b.upload, nil
	}
	body, contentType, err := encodeMultipart(b.field, payload)
	if err != nil {
		return nil, err
	}
	b.upload = &encodedUpload{key: key, body: body, contentType: contentType}
	return b.upload, nil
}

func encodeMultipart(field string, payload Payload) ([]byte, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(payload.Data) + 512)
	w := multipart.NewWriter(&buf)

	name := payload.Name
	if name == "" {
		name = "payload"
	}
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("multipart part: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, "", fmt.Errorf("multipart write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("multipart close: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
