package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskgate-io/taskgate/pkg/models"
)

func TestLoadConfigDefaults(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ContextDir != ".ai-context" {
		t.Errorf("ContextDir = %q, want .ai-context", cfg.ContextDir)
	}
	if len(cfg.EnforcedStates) != 1 || cfg.EnforcedStates[0] != models.StateReviewing {
		t.Errorf("EnforcedStates = %v, want [REVIEWING]", cfg.EnforcedStates)
	}
	if cfg.MinStateDwell != 30*time.Second {
		t.Errorf("MinStateDwell = %v, want 30s", cfg.MinStateDwell)
	}
	if !cfg.AutoActivateNext {
		t.Error("AutoActivateNext = false, want true")
	}
	if cfg.EventLogPath != ".taskgate_events.jsonl" {
		t.Errorf("EventLogPath = %q, want .taskgate_events.jsonl", cfg.EventLogPath)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `context_dir: .work-context
gates:
  enforced_states:
    - reviewing
    - testing
  min_state_dwell: 2m
queue:
  auto_activate_next: false
checklists:
  template_file: checklists.yaml
`
	if err := os.WriteFile(filepath.Join(dir, ".taskgate.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ContextDir != ".work-context" {
		t.Errorf("ContextDir = %q, want .work-context", cfg.ContextDir)
	}
	// State names are normalized to the canonical uppercase form.
	if len(cfg.EnforcedStates) != 2 || cfg.EnforcedStates[0] != models.StateReviewing || cfg.EnforcedStates[1] != models.StateTesting {
		t.Errorf("EnforcedStates = %v, want [REVIEWING TESTING]", cfg.EnforcedStates)
	}
	if cfg.MinStateDwell != 2*time.Minute {
		t.Errorf("MinStateDwell = %v, want 2m", cfg.MinStateDwell)
	}
	if cfg.AutoActivateNext {
		t.Error("AutoActivateNext = true, want false")
	}
	if cfg.ChecklistTemplateFile != "checklists.yaml" {
		t.Errorf("ChecklistTemplateFile = %q, want checklists.yaml", cfg.ChecklistTemplateFile)
	}
}

func TestLoadConfigBadDwell(t *testing.T) {
	dir := t.TempDir()
	content := "gates:\n  min_state_dwell: soon\n"
	if err := os.WriteFile(filepath.Join(dir, ".taskgate.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewConfigurationManager(dir).LoadConfig(); err == nil {
		t.Fatal("expected error for unparseable dwell duration")
	}
}

func TestLoadConfigInvalidEnforcedState(t *testing.T) {
	dir := t.TempDir()
	content := "gates:\n  enforced_states:\n    - SHIPPING\n"
	if err := os.WriteFile(filepath.Join(dir, ".taskgate.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewConfigurationManager(dir).LoadConfig(); err == nil {
		t.Fatal("expected validation error for unknown enforced state")
	}
}

func TestValidateConfig(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())

	if err := cm.ValidateConfig(nil); err == nil {
		t.Error("nil config accepted")
	}
	if err := cm.ValidateConfig(&models.Config{}); err == nil {
		t.Error("empty context_dir accepted")
	}
	if err := cm.ValidateConfig(&models.Config{ContextDir: ".ai-context", MinStateDwell: -time.Second}); err == nil {
		t.Error("negative dwell accepted")
	}
	if err := cm.ValidateConfig(DefaultConfig()); err != nil {
		t.Errorf("default config rejected: %v", err)
	}
}
