package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/catalog"
	"github.com/martin3r-me/platforms-brands-sub000/internal/config"
	"github.com/martin3r-me/platforms-brands-sub000/internal/logging"
	"github.com/martin3r-me/platforms-brands-sub000/internal/schema"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded SQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config load: %w", err)
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL or BRANDS_DATABASE_URL required")
		}
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := openDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		applied, err := store.Migrate(cmd.Context(), db)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Strings("files", applied))
		return nil
	},
}

var catalogFile string

var seedFormatsCmd = &cobra.Command{
	Use:   "seed-formats",
	Short: "Upsert the platform format catalog into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config load: %w", err)
		}
		path := catalogFile
		if path == "" {
			path = cfg.CatalogFile
		}
		if path == "" {
			return errors.New("--file or BRANDS_CATALOG_FILE required")
		}
		c, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL or BRANDS_DATABASE_URL required")
		}
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := openDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		n, err := catalog.Seed(cmd.Context(), store.NewPGStore(db), c)
		if err != nil {
			return err
		}
		logger.Info("format catalog seeded", zap.String("file", path), zap.Int("formats", n))
		return nil
	},
}

var (
	validateCatalog  string
	validatePlatform string
	validateFormat   string
)

var validateCmd = &cobra.Command{
	Use:   "validate <payload.json>",
	Short: "Check a payload against a catalog format without touching the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.LoadFile(validateCatalog)
		if err != nil {
			return err
		}
		f, ok := c.Lookup(validatePlatform, validateFormat)
		if !ok {
			return fmt.Errorf("format %s/%s not in %s", validatePlatform, validateFormat, validateCatalog)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		errs := schema.Validate(payload, f.OutputSchema)
		out := cmd.OutOrStdout()
		if len(errs) == 0 {
			fmt.Fprintf(out, "%s/%s: valid\n", validatePlatform, validateFormat)
			return nil
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(errs); err != nil {
			return err
		}
		return fmt.Errorf("%d validation error(s)", len(errs))
	},
}

func init() {
	seedFormatsCmd.Flags().StringVar(&catalogFile, "file", "", "catalog YAML file")
	validateCmd.Flags().StringVar(&validateCatalog, "file", "configs/formats.yaml", "catalog YAML file")
	validateCmd.Flags().StringVar(&validatePlatform, "platform", "", "platform key")
	validateCmd.Flags().StringVar(&validateFormat, "format", "", "format key")
	_ = validateCmd.MarkFlagRequired("platform")
	_ = validateCmd.MarkFlagRequired("format")
}
