package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"

	"push_notify/internal/model"
)

const attachmentsDir = "notification-attachments"

var (
	ErrImageTooLarge   = errors.New("enrich: image exceeds size limit")
	ErrUnsupportedType = errors.New("enrich: unsupported image type")
)

type (
	// ImageFetcher downloads an icon and stores it as a PNG in a private
	// directory under the temp dir.
	ImageFetcher struct {
		client   *http.Client
		maxBytes int64
		maxDim   uint
		dir      string
	}
)

func NewImageFetcher(client *http.Client, tempDir string, maxBytes int64, maxDim uint) *ImageFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ImageFetcher{
		client:   client,
		maxBytes: maxBytes,
		maxDim:   maxDim,
		dir:      filepath.Join(tempDir, attachmentsDir),
	}
}

// Fetch downloads rawURL, decodes it as an image and writes it to a file
// unique to this call. The caller bounds it with ctx.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*model.Attachment, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("enrich: invalid icon url")
	}

	data, err := f.download(ctx, u.String())
	if err != nil {
		return nil, err
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	img = f.thumbnail(img)

	name := filename(u)
	p, err := f.write(name, img)
	if err != nil {
		return nil, err
	}
	return &model.Attachment{Identifier: name, Path: p}, nil
}

func (f *ImageFetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("enrich: create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrich: fetch icon: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("enrich: fetch icon: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, ErrImageTooLarge
	}

	buffer := new(bytes.Buffer)
	n, err := io.Copy(buffer, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("enrich: read icon: %w", err)
	}
	if n > f.maxBytes {
		return nil, ErrImageTooLarge
	}
	return buffer.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	var img image.Image
	var err error
	contentType := http.DetectContentType(data)

	switch contentType {
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/gif":
		img, err = gif.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		return nil, ErrUnsupportedType
	}

	if err != nil {
		return nil, fmt.Errorf("enrich: decode %s: %w", contentType, err)
	}
	return img, nil
}

func (f *ImageFetcher) thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	if f.maxDim == 0 || (uint(b.Dx()) <= f.maxDim && uint(b.Dy()) <= f.maxDim) {
		return img
	}
	return resize.Thumbnail(f.maxDim, f.maxDim, img, resize.Lanczos3)
}

func (f *ImageFetcher) write(name string, img image.Image) (string, error) {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return "", fmt.Errorf("enrich: create attachments dir: %w", err)
	}

	stem := strings.TrimSuffix(name, path.Ext(name))
	file, err := os.CreateTemp(f.dir, stem+"-*.png")
	if err != nil {
		return "", fmt.Errorf("enrich: create attachment: %w", err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()           //nolint:errcheck
		os.Remove(file.Name()) //nolint:errcheck
		return "", fmt.Errorf("enrich: encode attachment: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name()) //nolint:errcheck
		return "", fmt.Errorf("enrich: write attachment: %w", err)
	}
	return file.Name(), nil
}

// filename is the last path element of u, reduced to a safe character set.
func filename(u *url.URL) string {
	base := path.Base(u.Path)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		return "icon"
	}
	return name
}
