package business

import (
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/dbtest/postgrestest"
)

func TestMigrateMain_InvalidRefs(t *testing.T) {
	missing := commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/file"}}
	embedded := func(v string) commoncfg.SourceRef {
		return commoncfg.SourceRef{Source: "embedded", Value: v}
	}

	tests := []struct {
		name string
		db   config.Database
	}{
		{
			name: "host",
			db:   config.Database{Host: missing, User: embedded("user"), Password: embedded("pass"), Port: "5432", Name: "testdb"},
		}, {
			name: "user",
			db:   config.Database{Host: embedded("localhost"), User: missing, Password: embedded("pass"), Port: "5432", Name: "testdb"},
		}, {
			name: "password",
			db:   config.Database{Host: embedded("localhost"), User: embedded("user"), Password: missing, Port: "5432", Name: "testdb"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MigrateMain(t.Context(), &config.Config{
				Storage:  config.Storage{Type: config.StorageTypeSQL},
				Database: tt.db,
			})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "making connection string from config")
		})
	}
}

func TestMigrateMain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	// Start migrates already, MigrateMain must be idempotent.
	_, port, terminate := postgrestest.Start(t.Context())
	defer terminate(t.Context())

	cfg := &config.Config{
		Storage: config.Storage{Type: config.StorageTypeSQL},
		Database: config.Database{
			Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost"},
			User:     commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBUser},
			Password: commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBPassword},
			Name:     postgrestest.DBName,
			Port:     port.Port(),
		},
	}

	require.NoError(t, MigrateMain(t.Context(), cfg))
}
