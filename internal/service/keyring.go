package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/robcowart/docsign/internal/config"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"go.uber.org/zap"
)

const masterKeyConfigKey = "master_key"

// SystemConfigStore persists system-wide settings.
type SystemConfigStore interface {
	GetSystemConfig(ctx context.Context, key string) (string, error)
	SetSystemConfig(ctx context.Context, key, value string) error
}

// LoadMasterKey returns the store master key. A key in the configuration
// wins; otherwise the key kept in system_config is used, and generated on
// first start.
func LoadMasterKey(ctx context.Context, cfg *config.Config, db SystemConfigStore, logger *zap.Logger) ([]byte, error) {
	if cfg.Store.MasterKey != "" {
		key, err := hex.DecodeString(cfg.Store.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode configured master key: %w", err)
		}
		return key, nil
	}

	masterKeyHex, err := db.GetSystemConfig(ctx, masterKeyConfigKey)
	switch {
	case err == nil:
		key, err := hex.DecodeString(masterKeyHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode master key: %w", err)
		}
		return key, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to get master key: %w", err)
	}

	key, err := dscrypto.GenerateMasterKey()
	if err != nil {
		return nil, err
	}

	if err := db.SetSystemConfig(ctx, masterKeyConfigKey, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("failed to store master key: %w", err)
	}

	logger.Warn("Generated a new store master key and saved it in the database; set store.master_key to keep it outside the database")
	return key, nil
}
