package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djassa/internal/config"
	"djassa/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"memory", "memory", false},
		{"sheets", "sheets", false},
		{"unknown", "sqlite", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromAppConfig(&config.Config{ExportBackend: tt.backend, GoogleSheetName: "Journal"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ExporterType(tt.backend), cfg.Type)
			assert.Equal(t, "Journal", cfg.GoogleSheetName)
		})
	}

	_, err := FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Type: MemoryExporter}.Validate())
	assert.Error(t, Config{Type: SheetsExporter, GoogleSheetName: "Journal"}.Validate())
	assert.NoError(t, Config{Type: SheetsExporter, GoogleSpreadsheetID: "id", GoogleSheetName: "Journal"}.Validate())
	assert.Error(t, Config{Type: "nope"}.Validate())
}

func TestNewExporter_Memory(t *testing.T) {
	res, err := NewExporter(context.Background(), Config{Type: MemoryExporter})
	require.NoError(t, err)
	_, ok := res.Exporter.(*memory.Store)
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"sheets", "memory"}, ExporterTypeStrings())
}
