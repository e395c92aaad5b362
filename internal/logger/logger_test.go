package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config uses defaults", config: nil},
		{name: "console format", config: &Config{Level: "debug", Format: "console", Output: "console"}},
		{name: "file output", config: &Config{
			Level: "info", Format: "json", Output: "file",
			Filename: filepath.Join(t.TempDir(), "app.log"), MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1,
		}},
		{name: "bad level", config: &Config{Level: "loud", Format: "json", Output: "console"}, wantErr: true},
		{name: "bad format", config: &Config{Level: "info", Format: "xml", Output: "console"}, wantErr: true},
		{name: "file output without filename", config: &Config{Level: "info", Format: "json", Output: "file"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
			log.Named("test").Info("hello")
		})
	}
}
