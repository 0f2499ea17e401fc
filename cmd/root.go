package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/config"
	"github.com/sells-group/compare-engine/internal/source"
)

var cfg *config.Config

var (
	sourceFlags []string
	schemaFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "compare-engine",
	Short: "Browse, look up and compare directory entities",
	Long:  "Loads business-directory exports with inconsistent column names, canonicalizes them, and serves lookup, map viewport and side-by-side comparison.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlags(c, sourceFlags, schemaFlag)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyFlags lets --source and --schema replace the configured values.
func applyFlags(c *config.Config, sources []string, schema string) {
	if len(sources) > 0 {
		c.Sources = make([]source.Spec, 0, len(sources))
		for _, s := range sources {
			if strings.Contains(s, "://") {
				c.Sources = append(c.Sources, source.Spec{URL: s})
			} else {
				c.Sources = append(c.Sources, source.Spec{Path: s})
			}
		}
	}
	if schema != "" {
		c.Schema.Type = schema
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&sourceFlags, "source", "s", nil, "file path or URL to load instead of the configured sources (repeatable)")
	rootCmd.PersistentFlags().StringVar(&schemaFlag, "schema", "", "schema type (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
