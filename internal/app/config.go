package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const (
	defaultContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	defaultRPCURL          = "http://127.0.0.1:8545"
	projectConfigName      = ".medbook.toml"
)

type fileConfig struct {
	ContractAddress string                `toml:"contract_address"`
	RPCURL          string                `toml:"rpc_url"`
	Keystore        string                `toml:"keystore"`
	Journal         string                `toml:"journal"`
	TZ              string                `toml:"tz"`
	Timeout         string                `toml:"timeout"`
	RPS             float64               `toml:"rps"`
	Output          string                `toml:"output"`
	Fields          string                `toml:"fields"`
	Profile         string                `toml:"profile"`
	Profiles        map[string]fileConfig `toml:"profiles"`
}

func resolveGlobalOptions(cmd *cobra.Command, defaults *globalOptions) (*globalOptions, error) {
	resolved := *defaults

	profile := firstNonEmpty(env("MEDBOOK_PROFILE"), defaults.Profile)
	if flagValueChanged(cmd, "profile") {
		profile = defaults.Profile
	}
	if profile == "" {
		profile = "default"
	}
	resolved.Profile = profile

	userPath := defaultUserConfigPath()
	projectPath := projectConfigName
	configPath := firstNonEmpty(env("MEDBOOK_CONFIG"), userPath)
	if flagValueChanged(cmd, "config") {
		configPath = defaults.Config
	}

	if cfg, ok := readConfigFile(userPath); ok {
		applyFileConfig(&resolved, cfg, profile)
	}
	if cfg, ok := readConfigFile(projectPath); ok {
		applyFileConfig(&resolved, cfg, profile)
	}
	if configPath != "" && configPath != userPath && configPath != projectPath {
		if cfg, ok := readConfigFile(configPath); ok {
			applyFileConfig(&resolved, cfg, profile)
		}
	}

	applyEnv(&resolved)
	applyFlags(cmd, &resolved, defaults)

	if resolved.Config == "" {
		resolved.Config = configPath
	}
	if resolved.Keystore == "" {
		resolved.Keystore = defaultDataPath("keystore")
	}
	if resolved.Journal == "" {
		resolved.Journal = defaultDataPath("journal.db")
	}
	return &resolved, nil
}

func applyFileConfig(dst *globalOptions, cfg fileConfig, profile string) {
	if p, ok := cfg.Profiles[profile]; ok {
		cfg = mergeFileConfig(cfg, p)
	}
	if cfg.ContractAddress != "" {
		dst.ContractAddress = cfg.ContractAddress
	}
	if cfg.RPCURL != "" {
		dst.RPCURL = cfg.RPCURL
	}
	if cfg.Keystore != "" {
		dst.Keystore = expandHome(cfg.Keystore)
	}
	if cfg.Journal != "" {
		dst.Journal = expandHome(cfg.Journal)
	}
	if cfg.TZ != "" {
		dst.TZ = cfg.TZ
	}
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			dst.Timeout = d
		}
	}
	if cfg.RPS > 0 {
		dst.RPS = cfg.RPS
	}
	if cfg.Fields != "" {
		dst.Fields = cfg.Fields
	}
	if cfg.Output != "" {
		applyOutputMode(dst, cfg.Output)
	}
}

func mergeFileConfig(base, overlay fileConfig) fileConfig {
	if overlay.ContractAddress != "" {
		base.ContractAddress = overlay.ContractAddress
	}
	if overlay.RPCURL != "" {
		base.RPCURL = overlay.RPCURL
	}
	if overlay.Keystore != "" {
		base.Keystore = overlay.Keystore
	}
	if overlay.Journal != "" {
		base.Journal = overlay.Journal
	}
	if overlay.TZ != "" {
		base.TZ = overlay.TZ
	}
	if overlay.Timeout != "" {
		base.Timeout = overlay.Timeout
	}
	if overlay.RPS > 0 {
		base.RPS = overlay.RPS
	}
	if overlay.Output != "" {
		base.Output = overlay.Output
	}
	if overlay.Fields != "" {
		base.Fields = overlay.Fields
	}
	if overlay.Profile != "" {
		base.Profile = overlay.Profile
	}
	return base
}

func applyEnv(dst *globalOptions) {
	if v := env("MEDBOOK_CONTRACT_ADDRESS"); v != "" {
		dst.ContractAddress = v
	}
	if v := env("MEDBOOK_RPC_URL"); v != "" {
		dst.RPCURL = v
	}
	if v := env("MEDBOOK_KEYSTORE"); v != "" {
		dst.Keystore = v
	}
	if v := env("MEDBOOK_JOURNAL"); v != "" {
		dst.Journal = v
	}
	if v := env("MEDBOOK_TIMEZONE"); v != "" {
		dst.TZ = v
	}
	if v := env("MEDBOOK_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			dst.RPS = f
		}
	}
	if v := env("MEDBOOK_FIELDS"); v != "" {
		dst.Fields = v
	}
	if v := env("MEDBOOK_OUTPUT"); v != "" {
		applyOutputMode(dst, v)
	}
	if v := env("MEDBOOK_NO_INPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			dst.NoInput = b
		}
	}
}

func applyOutputMode(dst *globalOptions, mode string) {
	switch strings.ToLower(mode) {
	case "json":
		dst.JSON, dst.JSONL, dst.Plain = true, false, false
	case "jsonl":
		dst.JSON, dst.JSONL, dst.Plain = false, true, false
	case "plain":
		dst.JSON, dst.JSONL, dst.Plain = false, false, true
	}
}

func applyFlags(cmd *cobra.Command, dst, fromFlags *globalOptions) {
	copyIfChanged(cmd, "json", func() { dst.JSON = fromFlags.JSON })
	copyIfChanged(cmd, "jsonl", func() { dst.JSONL = fromFlags.JSONL })
	copyIfChanged(cmd, "plain", func() { dst.Plain = fromFlags.Plain })
	copyIfChanged(cmd, "fields", func() { dst.Fields = fromFlags.Fields })
	copyIfChanged(cmd, "quiet", func() { dst.Quiet = fromFlags.Quiet })
	copyIfChanged(cmd, "verbose", func() { dst.Verbose = fromFlags.Verbose })
	copyIfChanged(cmd, "no-color", func() { dst.NoColor = fromFlags.NoColor })
	copyIfChanged(cmd, "no-input", func() { dst.NoInput = fromFlags.NoInput })
	copyIfChanged(cmd, "profile", func() { dst.Profile = fromFlags.Profile })
	copyIfChanged(cmd, "config", func() { dst.Config = fromFlags.Config })
	copyIfChanged(cmd, "contract", func() { dst.ContractAddress = fromFlags.ContractAddress })
	copyIfChanged(cmd, "rpc-url", func() { dst.RPCURL = fromFlags.RPCURL })
	copyIfChanged(cmd, "keystore", func() { dst.Keystore = fromFlags.Keystore })
	copyIfChanged(cmd, "journal", func() { dst.Journal = fromFlags.Journal })
	copyIfChanged(cmd, "tz", func() { dst.TZ = fromFlags.TZ })
	copyIfChanged(cmd, "timeout", func() { dst.Timeout = fromFlags.Timeout })
	copyIfChanged(cmd, "rps", func() { dst.RPS = fromFlags.RPS })
	copyIfChanged(cmd, "schema-version", func() { dst.SchemaVersion = fromFlags.SchemaVersion })

	// If exactly one output mode flag is explicitly set, it overrides env/config output mode.
	modeSet := 0
	if flagValueChanged(cmd, "json") && fromFlags.JSON {
		modeSet++
	}
	if flagValueChanged(cmd, "jsonl") && fromFlags.JSONL {
		modeSet++
	}
	if flagValueChanged(cmd, "plain") && fromFlags.Plain {
		modeSet++
	}
	if modeSet == 1 {
		if flagValueChanged(cmd, "json") && fromFlags.JSON {
			applyOutputMode(dst, "json")
		}
		if flagValueChanged(cmd, "jsonl") && fromFlags.JSONL {
			applyOutputMode(dst, "jsonl")
		}
		if flagValueChanged(cmd, "plain") && fromFlags.Plain {
			applyOutputMode(dst, "plain")
		}
	}
}

func copyIfChanged(cmd *cobra.Command, name string, fn func()) {
	if flagValueChanged(cmd, name) {
		fn()
	}
}

func flagValueChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

func readConfigFile(path string) (fileConfig, bool) {
	if strings.TrimSpace(path) == "" {
		return fileConfig{}, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, false
	}
	var cfg fileConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, false
	}
	return cfg, true
}

func defaultUserConfigPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "medbook", "config.toml")
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "medbook", "config.toml")
}

// defaultDataPath places name next to the user config file.
func defaultDataPath(name string) string {
	base := defaultUserConfigPath()
	if base == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(base), name)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
