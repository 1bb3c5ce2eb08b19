// Package attachment validates uploaded campaign images, keeps a copy in
// the configured store and turns them into inline provider attachments.
package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// DefaultMaxBytes caps an uploaded image.
const DefaultMaxBytes = 5 << 20

// AttachmentFilename is the file name recipients see.
const AttachmentFilename = "image"

var (
	ErrEmpty    = errors.New("attachment: empty upload")
	ErrTooLarge = errors.New("attachment: image too large")
	ErrNotImage = errors.New("attachment: not a supported image")
)

// Store keeps uploaded files.
type Store interface {
	// Save writes data under name and returns where it ended up.
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Processor prepares uploads for sending.
type Processor struct {
	store    Store
	maxBytes int64
}

// NewProcessor creates a processor saving into store. A nil store skips
// saving.
func NewProcessor(store Store, maxBytes int64) *Processor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Processor{store: store, maxBytes: maxBytes}
}

// Prepare reads an uploaded image, checks that it decodes, stores it and
// returns it base64-encoded for the provider.
func (p *Processor) Prepare(ctx context.Context, filename string, r io.Reader) (*domain.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > p.maxBytes {
		return nil, ErrTooLarge
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	contentType := "image/" + format

	if p.store != nil {
		name := storedName(filename, format)
		location, err := p.store.Save(ctx, name, contentType, data)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		logger.Info("attachment: image stored", "location", location, "content_type", contentType, "bytes", len(data))
	}

	return &domain.Attachment{
		ContentType:   contentType,
		Filename:      AttachmentFilename,
		Base64Content: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// storedName prefixes a random id so uploads with the same name do not
// overwrite each other, and keeps only the base of the client's name.
func storedName(filename, format string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, stem)
	if stem == "" || stem == "_" {
		stem = "image"
	}
	if len(ext) < 2 {
		ext = "." + format
	}
	return fmt.Sprintf("%s-%s%s", uuid.New().String()[:8], stem, strings.ToLower(ext))
}
