package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/taskgate-io/taskgate/pkg/models"
)

// ConfigurationManager loads and validates engine configuration from the
// .taskgate.yaml file and the TASKGATE_* environment.
type ConfigurationManager interface {
	LoadConfig() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager reading
// configuration relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config with the engine defaults: context in
// .ai-context/, checklist enforcement at the REVIEWING boundary, 30s dwell,
// auto-activation on.
func DefaultConfig() *models.Config {
	return &models.Config{
		ContextDir:       ".ai-context",
		EnforcedStates:   []models.WorkflowState{models.StateReviewing},
		MinStateDwell:    30 * time.Second,
		AutoActivateNext: true,
		EventLogPath:     ".taskgate_events.jsonl",
	}
}

// LoadConfig reads .taskgate.yaml from the base path. Missing file yields
// defaults; TASKGATE_* environment variables override file values.
func (cm *viperConfigManager) LoadConfig() (*models.Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(".taskgate")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("TASKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("context_dir", cfg.ContextDir)
	v.SetDefault("gates.enforced_states", []string{string(models.StateReviewing)})
	v.SetDefault("gates.min_state_dwell", cfg.MinStateDwell.String())
	v.SetDefault("queue.auto_activate_next", cfg.AutoActivateNext)
	v.SetDefault("checklists.template_file", "")
	v.SetDefault("events.path", cfg.EventLogPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .taskgate.yaml: %w", err)
		}
	}

	cfg.ContextDir = v.GetString("context_dir")
	cfg.AutoActivateNext = v.GetBool("queue.auto_activate_next")
	cfg.ChecklistTemplateFile = v.GetString("checklists.template_file")
	cfg.EventLogPath = v.GetString("events.path")

	cfg.EnforcedStates = nil
	for _, s := range v.GetStringSlice("gates.enforced_states") {
		cfg.EnforcedStates = append(cfg.EnforcedStates, models.WorkflowState(strings.ToUpper(strings.TrimSpace(s))))
	}

	dwell, err := time.ParseDuration(v.GetString("gates.min_state_dwell"))
	if err != nil {
		return nil, fmt.Errorf("reading .taskgate.yaml: gates.min_state_dwell: %w", err)
	}
	cfg.MinStateDwell = dwell

	if err := cm.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values, collecting
// every problem into a single error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.ContextDir == "" {
		errs = append(errs, "context_dir must not be empty")
	}
	for _, s := range cfg.EnforcedStates {
		if !models.IsValidState(s) {
			errs = append(errs, fmt.Sprintf(
				"gates.enforced_states entry %q is invalid, must be one of: %v", s, models.WorkflowOrder))
		}
	}
	if cfg.MinStateDwell < 0 {
		errs = append(errs, fmt.Sprintf("gates.min_state_dwell %s is invalid, must be non-negative", cfg.MinStateDwell))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
