// Package imaging уменьшает загруженные изображения до заданных габаритов.
package imaging

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
	"log/slog"
	"math"

	"golang.org/x/image/draw"

	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/files"
)

// Значения по умолчанию для габаритов и качества JPEG.
const (
	DefaultMaxWidth    = 320
	DefaultMaxHeight   = 240
	DefaultJPEGQuality = 85

	// DefaultMaxPixels - предел площади исходного изображения. Больше не декодируем.
	DefaultMaxPixels = 50_000_000
)

// TransientIOError - сбой чтения или записи файла; задачу стоит повторить.
type TransientIOError struct {
	AttachmentID string
	Err          error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient i/o failure for attachment %s: %v", e.AttachmentID, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// AttachmentGetter - часть хранилища, нужная нормализатору.
type AttachmentGetter interface {
	GetAttachmentByID(ctx context.Context, id string) (*domain.Attachment, error)
}

// Normalizer пропорционально уменьшает изображение и перезаписывает его на месте.
type Normalizer struct {
	store     AttachmentGetter
	files     files.Store
	maxWidth  int
	maxHeight int
	maxPixels int64
}

// NewNormalizer создает нормализатор; нулевые габариты заменяются значениями по умолчанию.
func NewNormalizer(store AttachmentGetter, fileStore files.Store, maxWidth, maxHeight int) *Normalizer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	return &Normalizer{store: store, files: fileStore, maxWidth: maxWidth, maxHeight: maxHeight, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels меняет предел площади исходника; limit <= 0 оставляет значение по умолчанию.
func (n *Normalizer) WithMaxPixels(limit int64) *Normalizer {
	if limit > 0 {
		n.maxPixels = limit
	}
	return n
}

// Normalize обрабатывает одно вложение. Повторный запуск на уже уменьшенном файле ничего не делает.
func (n *Normalizer) Normalize(ctx context.Context, attachmentID string) error {
	attachment, err := n.store.GetAttachmentByID(ctx, attachmentID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return &TransientIOError{AttachmentID: attachmentID, Err: err}
	}

	data, err := n.read(ctx, attachment.File)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return nil
		}
		return &TransientIOError{AttachmentID: attachmentID, Err: err}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// не изображение или формат не поддерживается
		return nil
	}
	if cfg.Width <= n.maxWidth && cfg.Height <= n.maxHeight {
		return nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > n.maxPixels {
		slog.Warn("imaging: image too large to decode, left as is",
			"attachment", attachmentID, "width", cfg.Width, "height", cfg.Height, "max_pixels", n.maxPixels)
		return nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode %s image %s: %w", format, attachment.File, err)
	}

	w, h := fit(cfg.Width, cfg.Height, n.maxWidth, n.maxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	contentType, err := encode(&out, dst, format)
	if err != nil {
		return fmt.Errorf("failed to encode %s image %s: %w", format, attachment.File, err)
	}

	if err := n.files.Save(ctx, attachment.File, &out, int64(out.Len()), contentType); err != nil {
		return &TransientIOError{AttachmentID: attachmentID, Err: err}
	}
	slog.Debug("imaging: attachment resized", "attachment", attachmentID, "from", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "to", fmt.Sprintf("%dx%d", w, h))
	return nil
}

func (n *Normalizer) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := n.files.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// fit вписывает w x h в maxW x maxH с сохранением пропорций.
func fit(w, h, maxW, maxH int) (int, int) {
	ratio := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Round(float64(w) * ratio))
	nh := int(math.Round(float64(h) * ratio))
	return max(1, min(nw, maxW)), max(1, min(nh, maxH))
}

func encode(w io.Writer, img image.Image, format string) (string, error) {
	switch format {
	case "jpeg":
		return "image/jpeg", jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality})
	case "png":
		return "image/png", png.Encode(w, img)
	case "gif":
		return "image/gif", gif.Encode(w, img, nil)
	}
	return "", fmt.Errorf("unsupported format %q", format)
}
