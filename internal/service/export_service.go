package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registry-api/internal/dto"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
	"github.com/noah-isme/registry-api/pkg/export"
)

const (
	exportFormatCSV = "csv"
	exportFormatPDF = "pdf"
)

var registerJournalHeaders = []string{"Number", "Registered", "Type", "Subject", "Correspondent", "Status"}

type exportDocumentLister interface {
	ListForExport(ctx context.Context, filter models.DocumentFilter, limit int) ([]models.Document, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportFile is a rendered register journal ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the register journal of one register and year.
type ExportService struct {
	documents exportDocumentLister
	configs   configurationReader
	csv       csvRenderer
	pdf       pdfRenderer
	maxRows   int
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs the service; nil renderers fall back to pkg/export.
func NewExportService(documents exportDocumentLister, configs configurationReader, maxRows int, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &ExportService{
		documents: documents,
		configs:   configs,
		csv:       csv,
		pdf:       pdf,
		maxRows:   maxRows,
		validator: newValidator(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExportRegister renders the journal of numbered documents visible to the actor.
func (s *ExportService) ExportRegister(ctx context.Context, req dto.ExportRegisterRequest, actor models.Actor) (*ExportFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid export request")
	}
	format := strings.ToLower(req.Format)
	if format == "" {
		format = exportFormatCSV
	}
	year := req.Year
	if year == 0 {
		year = s.now().Year()
	}

	cfg, err := s.configs.GetByID(ctx, req.ConfigurationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrConfigurationNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register configuration")
	}
	if !actor.IsAdmin() && cfg.UnitID != nil && *cfg.UnitID != actor.UnitID {
		return nil, appErrors.ErrConfigurationNotFound
	}

	filter := models.DocumentFilter{ConfigurationID: cfg.ID, RegistrationYear: year}
	if !actor.IsAdmin() {
		visibleTo := actor
		filter.VisibleTo = &visibleTo
	}
	// One extra row tells a full journal apart from an oversized one.
	docs, err := s.documents.ListForExport(ctx, filter, s.maxRows+1)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register journal")
	}
	if len(docs) > s.maxRows {
		s.logger.Warn("register export rejected", zap.String("configuration_id", cfg.ID), zap.Int("year", year), zap.Int("max_rows", s.maxRows))
		return nil, appErrors.Validation("register journal is too large to export, narrow the export", map[string]string{
			"year": fmt.Sprintf("more than %d documents registered", s.maxRows),
		})
	}

	dataset := buildJournalDataset(cfg, docs)
	base := fmt.Sprintf("register-%s-%d", slug(cfg.Name), year)
	switch format {
	case exportFormatPDF:
		payload, err := s.pdf.Render(dataset, cfg.Name, fmt.Sprintf("Register journal %d", year))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Payload: payload}, nil
	}
}

func buildJournalDataset(cfg *models.RegisterConfiguration, docs []models.Document) export.Dataset {
	rows := make([]map[string]string, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		registered := ""
		if doc.RegisteredAt != nil {
			registered = doc.RegisteredAt.Format("2006-01-02")
		}
		rows = append(rows, map[string]string{
			"Number":        doc.RegistrationLabel(cfg.Prefix),
			"Registered":    registered,
			"Type":          string(doc.DocumentType),
			"Subject":       doc.Subject,
			"Correspondent": doc.Correspondent,
			"Status":        string(doc.Status),
		})
	}
	return export.Dataset{
		Headers: registerJournalHeaders,
		Rows:    rows,
		Widths:  []float64{1.2, 1, 0.8, 3.5, 2, 0.9},
	}
}

func slug(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "journal"
	}
	return b.String()
}
