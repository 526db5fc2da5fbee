package service

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/export"
	"github.com/aidly/aidly-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (storage.StoredFile, error)
	Open(filename string) (*os.File, error)
	Read(filename string) ([]byte, error)
	Delete(filename string) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// RenderedFile is a dataset rendered into one output format.
type RenderedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders report datasets, stores them and signs download links.
type ExportService struct {
	storage   fileStorage
	renderers map[export.Format]export.Renderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		storage:   storage,
		renderers: export.Renderers(),
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Render produces the bytes for dataset in format.
func (s *ExportService) Render(format models.ReportFormat, name string, dataset export.Dataset) (*RenderedFile, error) {
	renderer, ok := s.renderers[export.Format(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", format)
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return &RenderedFile{
		Filename:    s.buildFilename(name, format),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

// ContentType returns the MIME type produced for format.
func (s *ExportService) ContentType(format models.ReportFormat) string {
	if renderer, ok := s.renderers[export.Format(format)]; ok {
		return renderer.ContentType()
	}
	return "application/octet-stream"
}

// Store persists a rendered file named after its execution.
func (s *ExportService) Store(executionID string, file *RenderedFile) (storage.StoredFile, error) {
	return s.storage.Save(executionID+"_"+file.Filename, file.Data)
}

// DownloadURL signs a link to a stored execution file.
func (s *ExportService) DownloadURL(executionID, relPath string) (string, time.Time, error) {
	token, expiresAt, err := s.signer.Generate(executionID, relPath)
	if err != nil {
		return "", time.Time{}, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/export/%s", prefix, token), expiresAt, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (executionID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Read loads a stored file, used for email attachments.
func (s *ExportService) Read(relPath string) ([]byte, error) {
	return s.storage.Read(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

func (s *ExportService) buildFilename(name string, format models.ReportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", sanitizeFilename(name), timestamp, format)
}

func sanitizeFilename(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "report"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
