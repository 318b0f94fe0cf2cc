package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/models"
	"github.com/noah-isme/bondoverhobbies/internal/observability"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
)

// FileStorage abstracts the blob store receiving attachments.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService validates attachments and stores or previews them.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, principal *Principal) (dto.UploadResponse, error)
	Preview(ctx context.Context, file *multipart.FileHeader) (dto.PreviewResponse, error)
}

type uploadService struct {
	storage FileStorage
	repo    repository.UploadRepository
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

type inspectedFile struct {
	payload  []byte
	mime     string
	kind     string
	fileName string
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, repo repository.UploadRepository, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return &uploadService{
		storage: storage,
		repo:    repo,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/bondoverhobbies/internal/service/upload"),
	}
}

func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader, principal *Principal) (dto.UploadResponse, error) {
	if principal == nil {
		return dto.UploadResponse{}, ErrUnauthenticated
	}

	ctx, span := s.tracer.Start(ctx, "upload.store", trace.WithAttributes(attribute.String("user.uid", principal.UID)))
	defer span.End()

	inspected, err := s.inspect(span, file)
	if err != nil {
		return dto.UploadResponse{}, err
	}

	sum := sha256.Sum256(inspected.payload)
	checksum := hex.EncodeToString(sum[:])

	if existing, err := s.repo.FindByChecksum(ctx, principal.UID, checksum); err == nil {
		observability.Uploads().WithLabelValues(inspected.kind, "reused").Inc()
		span.SetStatus(codes.Ok, "reused")
		return uploadResponse(existing, inspected.kind), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn().Err(err).Msg("checksum lookup failed")
	}

	if s.storage == nil {
		observability.Uploads().WithLabelValues(inspected.kind, "storage").Inc()
		return dto.UploadResponse{}, ErrStorageUnavailable
	}

	url, err := s.storage.Upload(ctx, inspected.fileName, bytes.NewReader(inspected.payload))
	if err != nil {
		observability.Uploads().WithLabelValues(inspected.kind, "storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.UploadResponse{}, err
	}

	record := models.UploadRecord{
		UserID:    principal.UID,
		FileName:  inspected.fileName,
		URL:       url,
		MimeType:  inspected.mime,
		SizeBytes: int64(len(inspected.payload)),
		Checksum:  checksum,
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	observability.Uploads().WithLabelValues(inspected.kind, "stored").Inc()
	span.SetStatus(codes.Ok, "stored")
	return uploadResponse(record, inspected.kind), nil
}

// Preview renders the file as a data URI without storing it.
func (s *uploadService) Preview(ctx context.Context, file *multipart.FileHeader) (dto.PreviewResponse, error) {
	_, span := s.tracer.Start(ctx, "upload.preview")
	defer span.End()

	inspected, err := s.inspect(span, file)
	if err != nil {
		return dto.PreviewResponse{}, err
	}

	return dto.PreviewResponse{
		DataURI:  "data:" + inspected.mime + ";base64," + base64.StdEncoding.EncodeToString(inspected.payload),
		Type:     inspected.kind,
		FileName: inspected.fileName,
	}, nil
}

func (s *uploadService) inspect(span trace.Span, file *multipart.FileHeader) (inspectedFile, error) {
	span.SetAttributes(attribute.Int64("upload.max_bytes", s.maxSize))
	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return inspectedFile{}, err
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return inspectedFile{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return inspectedFile{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return inspectedFile{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return inspectedFile{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	detected := mimetype.Detect(buf.Bytes())
	mime := strings.ToLower(strings.SplitN(detected.String(), ";", 2)[0])
	kind := attachmentKind(mime)
	span.SetAttributes(attribute.String("upload.detected_mime", mime))
	if kind == "" {
		return inspectedFile{}, s.reject(span, "type", ErrUploadTypeNotAllowed)
	}

	return inspectedFile{
		payload:  buf.Bytes(),
		mime:     mime,
		kind:     kind,
		fileName: sanitizeFileName(file.Filename, detected.Extension()),
	}, nil
}

func (s *uploadService) reject(span trace.Span, reason string, err error) error {
	observability.Uploads().WithLabelValues("unknown", reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return err
}

func uploadResponse(record models.UploadRecord, kind string) dto.UploadResponse {
	return dto.UploadResponse{
		URL:       record.URL,
		Type:      kind,
		FileName:  record.FileName,
		MimeType:  record.MimeType,
		SizeBytes: record.SizeBytes,
		Checksum:  record.Checksum,
	}
}

func attachmentKind(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.AttachmentTypeImage
	case strings.HasPrefix(mime, "video/"):
		return models.AttachmentTypeVideo
	default:
		return ""
	}
}

func sanitizeFileName(name, detectedExt string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("attachment-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = detectedExt
	}
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
