package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alertdesk/alarm-console/internal/console/reconcile"
)

// TestValidate checks required fields, format validations and defaults.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	cfg := new(Config)

	err := Validate(cfg)
	require.Error(t, err)

	// Bad socket.
	cfg = &Config{
		ServerAddress: "bad:address",
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Defaults are filled in.
	cfg = &Config{
		ServerAddress: "127.0.0.1:0",
	}

	err = Validate(cfg)
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, reconcile.DefaultInitialInterval, cfg.Backfill.InitialInterval)
	require.Equal(t, reconcile.DefaultMaxAttempts, cfg.Backfill.MaxAttempts)

	// Inconsistent retry intervals are rejected.
	cfg = &Config{
		ServerAddress: "127.0.0.1:0",
		Backfill: BackfillConfig{
			InitialInterval: time.Minute,
			MaxInterval:     time.Second,
		},
	}

	err = Validate(cfg)
	require.Error(t, err)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		ServerAddress: "127.0.0.1:50051",
		AgentID:       "agent-a",
		Timeout:       3 * time.Second,
		Backfill: BackfillConfig{
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     4 * time.Second,
			MaxAttempts:     8,
		},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ServerAddress, loaded.ServerAddress)
	require.Equal(t, cfg.AgentID, loaded.AgentID)
	require.Equal(t, cfg.Backfill, loaded.Backfill)

	// RetryConfig mirrors the backfill section.
	retry := loaded.RetryConfig()
	require.Equal(t, cfg.Backfill.InitialInterval, retry.InitialInterval)
	require.Equal(t, cfg.Backfill.MaxAttempts, retry.MaxAttempts)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}
