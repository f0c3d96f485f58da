package backend

import (
	"context"
	"fmt"
	"log/slog"

	gsheet "djassa/internal/sheets/google"
	"djassa/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new exporter factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (*ExporterResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsExporter:
		return f.createSheetsExporter(ctx, config)
	case MemoryExporter:
		return f.createMemoryExporter()
	default:
		return nil, fmt.Errorf("unsupported export backend: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsExporter(ctx context.Context, config Config) (*ExporterResult, error) {
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Google Sheets exporter initialized",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet_name", config.GoogleSheetName)

	return &ExporterResult{Exporter: client}, nil
}

func (f *DefaultFactory) createMemoryExporter() (*ExporterResult, error) {
	f.logger.Info("Memory exporter initialized")
	return &ExporterResult{Exporter: memory.New()}, nil
}

// NewExporter builds the exporter selected by config with the default factory.
func NewExporter(ctx context.Context, config Config) (*ExporterResult, error) {
	return NewFactory(nil).CreateExporter(ctx, config)
}
