package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aem/internal/model"
)

// configDir returns $HOME/.aem
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".aem"), nil
}

// loadDotenv reads .env (or $AEM_ENV) and its .secret sidecar. Missing files
// are ignored and existing variables are never overwritten.
func loadDotenv() {
	envFile := os.Getenv("AEM_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")
}

// loadConfig layers flags over AEM_* environment over the config file over
// the built-in defaults
func loadConfig(o *options) (*model.Config, error) {
	loadDotenv()

	v := o.v
	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix("AEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := model.DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		// model tags are yaml; decoding over the defaults keeps unset fields
		data, err := os.ReadFile(v.ConfigFileUsed())
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	applyOverrides(v, cfg)
	if err := applyAPIKey(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every key set by flag or environment onto cfg
func applyOverrides(v *viper.Viper, cfg *model.Config) {
	str := map[string]*string{
		"projects_root":         &cfg.ProjectsRoot,
		"global_schema_path":    &cfg.GlobalSchemaPath,
		"llm.provider":          &cfg.LLM.Provider,
		"llm.model":             &cfg.LLM.Model,
		"llm.base_url":          &cfg.LLM.BaseURL,
		"llm.http_proxy":        &cfg.LLM.HTTPProxy,
		"llm.https_proxy":       &cfg.LLM.HTTPSProxy,
		"governor.cheap_model":  &cfg.Governor.CheapModel,
		"governor.mid_model":    &cfg.Governor.MidModel,
		"governor.strong_model": &cfg.Governor.StrongModel,
		"cache.dir":             &cfg.Cache.Dir,
		"log.level":             &cfg.Log.Level,
	}
	for key, dst := range str {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	ints := map[string]*int{
		"concurrency.workers":      &cfg.Concurrency.Workers,
		"triage.top_k":             &cfg.Triage.TopK,
		"gate.deadlock_max_cycles": &cfg.Gate.DeadlockMaxCycles,
		"attack.max_per_claim":     &cfg.Attack.MaxPerClaim,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	floats := map[string]*float64{
		"thresholds.oracle_integrity_min":      &cfg.Thresholds.OracleIntegrityMin,
		"thresholds.deadlock_rate_max":         &cfg.Thresholds.DeadlockRateMax,
		"thresholds.tentative_convergence_min": &cfg.Thresholds.TentativeConvergenceMin,
	}
	for key, dst := range floats {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	bools := map[string]*bool{
		"reopen.check":  &cfg.Reopen.Check,
		"cache.enabled": &cfg.Cache.Enabled,
		"attack.defend": &cfg.Attack.Defend,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	// unknown values are kept so the pipeline can warn and fall back to observe
	if v.IsSet("enforcement_mode") {
		cfg.EnforcementMode = model.EnforcementMode(strings.ToLower(strings.TrimSpace(v.GetString("enforcement_mode"))))
	}
}

// applyAPIKey fills the provider key from the environment
func applyAPIKey(v *viper.Viper, cfg *model.Config) error {
	if key := v.GetString("llm.api_key"); key != "" {
		cfg.LLM.APIKey = key
		return nil
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" && cfg.LLM.BaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	}
	return nil
}

func newConfigCmd(o *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage aem-settle configuration",
		Long: `Manage aem-settle configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (AEM_*)
3. Config file (~/.aem/config.yaml)
4. Defaults`,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  `Display the effective configuration after defaults, config file, env vars and flags are applied.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if used := o.v.ConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", used)
			} else {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "No configuration file found (using defaults)\n\n")
			}

			yamlData, err := yaml.Marshal(o.cfg)
			if err != nil {
				return fmt.Errorf("error marshaling config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(yamlData)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize default configuration file",
		Long:  `Create a default configuration file at ~/.aem/config.yaml with every available option.`,
		Args:  cobra.NoArgs,
		// init must work before any config file exists
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := o.cfgFile
			if configPath == "" {
				dir, err := configDir()
				if err != nil {
					return err
				}
				configPath = filepath.Join(dir, "config.yaml")
			}
			if err := writeDefaultConfig(configPath); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "✓ Created default configuration: %s\n", configPath)
			_, _ = fmt.Fprintf(out, "\nTo view the configuration:\n  aem-settle config show\n")
			return nil
		},
	}

	configCmd.AddCommand(showCmd, initCmd)
	return configCmd
}

// writeDefaultConfig writes the documented defaults to path. An existing file
// is never overwritten.
func writeDefaultConfig(path string) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'aem-settle config show' to view it, or delete it first to recreate", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	yamlData, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	printf := func(format string, a ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(f, format, a...)
	}

	printf("# aem-settle configuration\n")
	printf("#\n")
	printf("# Configuration hierarchy (highest to lowest priority):\n")
	printf("#   1. CLI flags\n")
	printf("#   2. Environment variables (AEM_*, e.g. AEM_ENFORCEMENT_MODE=strict)\n")
	printf("#   3. This config file\n")
	printf("#   4. Built-in defaults\n\n")
	printf("%s", yamlData)
	printf("\n# API keys (recommended to use environment variables or .env.secret instead):\n")
	printf("#   export OPENAI_API_KEY=sk-...\n")
	printf("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
	return err
}
