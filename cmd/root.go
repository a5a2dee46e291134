package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/config"
)

var (
	cfg *config.Config

	envFile   string
	rulesFile string
)

var rootCmd = &cobra.Command{
	Use:   "lead-intake",
	Short: "Insurance lead phone and premium triage",
	Long:  "Normalizes harvested lead phone numbers, rolls up active policy premium, assigns a badge per lead and writes the results to a workbook.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadSettings(envFile, rulesFile)
		if err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("settings loaded",
			zap.String("command", cmd.Name()),
			zap.String("rules_path", cfg.Badge.RulesPath),
			zap.Int("max_leads", cfg.Batch.MaxLeads),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// loadSettings exports the env file, reads config and applies the
// --rules override.
func loadSettings(envPath, rulesPath string) (*config.Config, error) {
	if err := config.LoadEnv(envPath); err != nil {
		return nil, err
	}
	c, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	if rulesPath != "" {
		c.Badge.RulesPath = rulesPath
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file exported before config is read")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "badge rule file (overrides badge.rules_path)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
