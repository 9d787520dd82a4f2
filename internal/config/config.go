package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultDatabasePath = "$HOME/.local/share/recon/recon.db"
	DefaultMinScore     = 24.0
	DefaultUndoExpiry   = 5 * time.Second
)

// Config is the resolved application configuration.
type Config struct {
	Database   DatabaseConfig
	Company    Company
	Logging    LoggingConfig
	Similarity SimilarityConfig
	Undo       UndoConfig
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string
}

// Company is the profile of the company whose statements are reconciled.
type Company struct {
	TaxID string
	Name  string
}

// CompanyTaxID returns the company INN used to detect self-transfers.
func (c Company) CompanyTaxID() string {
	return c.TaxID
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// SimilarityConfig tunes candidate search.
type SimilarityConfig struct {
	MinScore float64
}

// UndoConfig tunes the pending-action window.
type UndoConfig struct {
	Expiry time.Duration
}

// LoadDotEnv loads variables from a .env file if one exists. Variables
// already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load resolves configuration with this precedence:
// 1. Viper configuration (config file, flags or RECON_ env vars)
// 2. Direct environment variables (COMPANY_INN)
// 3. Default values
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := &Config{
		Database:   DatabaseConfig{Path: DefaultDatabasePath},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
		Similarity: SimilarityConfig{MinScore: DefaultMinScore},
		Undo:       UndoConfig{Expiry: DefaultUndoExpiry},
	}

	if p := v.GetString("database.path"); p != "" {
		cfg.Database.Path = p
	}
	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	cfg.Company.TaxID = strings.TrimSpace(v.GetString("company.tax_id"))
	cfg.Company.Name = v.GetString("company.name")
	if cfg.Company.TaxID == "" {
		cfg.Company.TaxID = strings.TrimSpace(os.Getenv("COMPANY_INN"))
	}

	if l := v.GetString("logging.level"); l != "" {
		cfg.Logging.Level = l
	}
	if f := v.GetString("logging.format"); f != "" {
		cfg.Logging.Format = f
	}

	if v.IsSet("similarity.min_score") {
		cfg.Similarity.MinScore = v.GetFloat64("similarity.min_score")
	}
	if v.IsSet("undo.expiry") {
		cfg.Undo.Expiry = v.GetDuration("undo.expiry")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Similarity.MinScore < 0 || c.Similarity.MinScore > 100 {
		return fmt.Errorf("%w: similarity.min_score must be within [0,100], got %v",
			common.ErrInvalidConfig, c.Similarity.MinScore)
	}
	if c.Undo.Expiry <= 0 {
		return fmt.Errorf("%w: undo.expiry must be positive, got %v", common.ErrInvalidConfig, c.Undo.Expiry)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Company.TaxID != "" && !isDigits(c.Company.TaxID) {
		return fmt.Errorf("%w: company.tax_id must be numeric", common.ErrInvalidConfig)
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
