package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/synthesis"
)

// isolate points HOME and the dotenv lookup at an empty directory
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AEM_ENV", filepath.Join(home, "missing.env"))
	t.Setenv("AEM_ENFORCEMENT_MODE", "")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeJSONFile(t *testing.T, path string, v interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// newProject creates a project with one verified claim
func newProject(t *testing.T, root, id string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	writeJSONFile(t, filepath.Join(dir, "project.json"), map[string]interface{}{
		"project_id": id,
		"question":   "Does remote work change productivity?",
	})
	writeJSONFile(t, filepath.Join(dir, "verify", "claim_ledger.json"), map[string]interface{}{
		"claims": []map[string]interface{}{{
			"claim_id":              "cl_1",
			"text":                  "Remote work raised output by 13% in a 2015 field experiment.",
			"supporting_source_ids": []string{"https://data.gov/remote-study"},
			"is_verified":           true,
			"verification_tier":     "VERIFIED",
		}},
	})
	return dir
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestSettleCommand(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	newProject(t, root, "p1")

	out, err := run(t, "p1", "--projects-root", root)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	for _, key := range []string{"ok", "steps", "oracle_integrity_rate", "deadlock_rate", "tentative_convergence_rate", "block_synthesize"} {
		assert.Contains(t, res, key)
	}
	assert.Equal(t, "observe", res["enforcement_mode"])
	if res["ok"] == true {
		assert.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, ErrNotOK)
	}
}

func TestSettleCommand_ProjectNotFound(t *testing.T) {
	isolate(t)
	out, err := run(t, "missing", "--projects-root", t.TempDir())
	require.Error(t, err)

	var res model.SettleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestSettleCommand_RequiresProject(t *testing.T) {
	isolate(t)
	_, err := run(t)
	assert.Error(t, err)
}

func TestEnforcementModeFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("AEM_ENFORCEMENT_MODE", "strict")
	root := t.TempDir()
	newProject(t, root, "p1")

	out, _ := run(t, "p1", "--projects-root", root)
	var res model.SettleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, model.ModeStrict, res.EnforcementMode)
}

func TestEnforcementModeFlagBeatsEnv(t *testing.T) {
	isolate(t)
	t.Setenv("AEM_ENFORCEMENT_MODE", "strict")
	root := t.TempDir()
	newProject(t, root, "p1")

	out, _ := run(t, "p1", "--projects-root", root, "--mode", "enforce")
	var res model.SettleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, model.ModeEnforce, res.EnforcementMode)
}

func TestLoadConfig(t *testing.T) {
	home := isolate(t)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(&options{v: viper.New()})
		require.NoError(t, err)
		assert.Equal(t, model.DefaultConfig().Thresholds, cfg.Thresholds)
		assert.Equal(t, model.ModeObserve, cfg.EnforcementMode)
	})

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(home, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"projects_root: /srv/projects\n"+
				"thresholds:\n  deadlock_rate_max: 0.1\n"+
				"concurrency:\n  workers: 9\n"), 0644))
		t.Setenv("AEM_CONCURRENCY_WORKERS", "3")

		cfg, err := loadConfig(&options{v: viper.New(), cfgFile: path})
		require.NoError(t, err)
		assert.Equal(t, "/srv/projects", cfg.ProjectsRoot)
		assert.Equal(t, 0.1, cfg.Thresholds.DeadlockRateMax)
		assert.Equal(t, 0.8, cfg.Thresholds.OracleIntegrityMin)
		assert.Equal(t, 3, cfg.Concurrency.Workers)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := loadConfig(&options{v: viper.New(), cfgFile: filepath.Join(home, "nope.yaml")})
		assert.Error(t, err)
	})

	t.Run("provider without key", func(t *testing.T) {
		t.Setenv("AEM_LLM_PROVIDER", "anthropic")
		t.Setenv("ANTHROPIC_API_KEY", "")
		_, err := loadConfig(&options{v: viper.New()})
		assert.Error(t, err)
	})
}

func TestConfigInitAndShow(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".aem", "config.yaml")

	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	require.FileExists(t, path)

	var written model.Config
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Equal(t, model.DefaultConfig().Gate, written.Gate)

	_, err = run(t, "config", "init")
	assert.Error(t, err)

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "enforcement_mode: observe")
}

func TestValidateReportCommand(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	newProject(t, root, "p1")

	_, _ = run(t, "p1", "--projects-root", root)

	report := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(report, []byte("Output fell by 40% in 2020 [claim_ref: cl_9@1]."), 0644))

	out, err := run(t, "validate-report", "p1", report, "--projects-root", root, "--mode", "enforce")
	var cerr *synthesis.ContractError
	require.True(t, errors.As(err, &cerr), "%v", err)

	var status synthesis.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Valid)
	assert.Equal(t, []string{"cl_9@1"}, status.UnknownRefs)

	out, err = run(t, "validate-report", "p1", report, "--projects-root", root)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Valid)
}

func TestBatchCommand(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	newProject(t, root, "p1")
	newProject(t, root, "p2")

	list := filepath.Join(t.TempDir(), "projects.txt")
	require.NoError(t, os.WriteFile(list, []byte("p1\n# skipped\np2\nmissing\n"), 0644))

	out, err := run(t, "batch", list, "--projects-root", root, "--concurrency", "2")
	assert.ErrorIs(t, err, ErrNotOK)

	var results []model.SettleResult
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 3)
	assert.Equal(t, "p1", results[0].ProjectID)
	assert.Equal(t, "p2", results[1].ProjectID)
	assert.Equal(t, "missing", results[2].ProjectID)
	assert.False(t, results[2].OK)
	assert.NotEmpty(t, results[2].Error)
}

func TestRouteCommand(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	newProject(t, root, "p1")

	out, err := run(t, "route", "p1", "extraction", "--projects-root", root)
	require.NoError(t, err)

	var d map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "cheap", d["lane"])
	assert.Equal(t, "routine_task", d["reason"])
}

func TestReopenCommand_Validation(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	newProject(t, root, "p1")

	_, err := run(t, "reopen", "p1", "--projects-root", root)
	assert.Error(t, err)

	_, err = run(t, "reopen", "p1", "cl_1@1", "--projects-root", root)
	assert.Error(t, err)

	out, err := run(t, "reopen", "p1", "--check", "--projects-root", root)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}
