package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/badge"
	"github.com/sells-group/lead-intake/internal/config"
	"github.com/sells-group/lead-intake/internal/events"
	"github.com/sells-group/lead-intake/internal/lead"
	"github.com/sells-group/lead-intake/internal/resilience"
	"github.com/sells-group/lead-intake/internal/runner"
)

// intakeEnv holds what the run and serve commands share: the badge rule
// table and the runner settings derived from config.
type intakeEnv struct {
	Rules  badge.Rules // nil means built-in classification
	Runner runner.Config
	Bus    *events.Bus
}

// initIntake validates cfg for mode and loads the optional rule file named
// by badge.rules_path.
func initIntake(c *config.Config, mode string) (*intakeEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	rulesPath := c.Badge.RulesPath
	var rules badge.Rules
	if rulesPath != "" {
		data, err := os.ReadFile(rulesPath)
		if err != nil {
			return nil, eris.Wrapf(err, "read badge rules %s", rulesPath)
		}
		// A malformed table never fails a run; leads get the built-in badges.
		r, err := badge.ParseRules(data)
		if err != nil {
			zap.L().Warn("badge rules invalid, using defaults",
				zap.String("path", rulesPath),
				zap.Error(err),
			)
		} else {
			rules = r
			zap.L().Info("badge rules loaded",
				zap.String("path", rulesPath),
				zap.Int("steps", len(rules.Steps())),
			)
		}
	}

	return &intakeEnv{
		Rules:  rules,
		Runner: runnerConfig(c, rules, 0, time.Time{}),
		Bus:    events.NewBus(events.DefaultBuffer),
	}, nil
}

// runnerConfig maps config onto runner settings. limit and today are
// per-request overrides; zero values keep the configured behavior.
func runnerConfig(c *config.Config, rules badge.Rules, limit int, today time.Time) runner.Config {
	return runner.Config{
		Concurrency: c.Batch.MaxConcurrentLeads,
		RatePerSec:  c.Batch.RatePerSec,
		MaxLeads:    c.Batch.ResolveMaxLeads(limit),
		Retry:       resilience.DefaultPolicy().WithAttempts(c.Batch.HarvestRetries),
		Lead: lead.Options{
			Today:         today,
			MaxBlockChars: c.Policy.MaxBlockChars,
			Rules:         rules,
		},
	}
}

// parseToday accepts YYYY-MM-DD; empty means the current date.
func parseToday(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse date %q", s)
	}
	return t, nil
}
