package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
)

// Sentinel errors for proctoring media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed proctoring frame MIME types.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// MediaService provisions durable media destinations and writes redeemed
// uploads into them.
type MediaService struct {
	cfg *config.Config
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config) *MediaService {
	return &MediaService{cfg: cfg}
}

// EnsureDestination returns the durable destination for one student's channel,
// creating it if needed. Idempotent: repeated calls with the same key return
// the same path, so a partially provisioned start can simply be retried.
func (s *MediaService) EnsureDestination(examID uuid.UUID, studentEmail, channel string) (string, error) {
	dir := filepath.Join(s.cfg.MediaDir, examID.String(), sanitizeSegment(studentEmail), sanitizeSegment(channel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media destination: %w", err)
	}
	return dir, nil
}

// StoreFrame writes one uploaded frame into the slot's destination, named by
// the slot handle so a destination never holds two files for one slot.
func (s *MediaService) StoreFrame(slot *model.UploadSlot, file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, contentType)
	}
	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	if err := os.MkdirAll(slot.Destination, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	destPath := filepath.Join(slot.Destination, slot.ID.String()+ext)
	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return destPath, nil
}

// sanitizeSegment makes an identifier safe to use as a path segment.
func sanitizeSegment(raw string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", "@", "_at_", " ", "_")
	return replacer.Replace(raw)
}
