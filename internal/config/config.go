// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/stratchat/internal/market"
	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/reveal"
	"github.com/jeranaias/stratchat/internal/turn"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete stratchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Backend  BackendConfig `toml:"backend" json:"backend"`
	Market   MarketConfig  `toml:"market" json:"market"`
	Defaults model.Params  `toml:"defaults" json:"defaults"`
	Reveal   RevealConfig  `toml:"reveal" json:"reveal"`
	Turn     TurnConfig    `toml:"turn" json:"turn"`
	Storage  StorageConfig `toml:"storage" json:"storage"`
	UI       UIConfig      `toml:"ui" json:"ui"`
	Log      LogConfig     `toml:"log" json:"log"`
}

// BackendConfig points the client at the strategy/backtest service.
type BackendConfig struct {
	URL            string  `toml:"url" json:"url"`
	TimeoutSecs    int     `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries     int     `toml:"max_retries" json:"max_retries"`
	RequestsPerSec float64 `toml:"requests_per_sec" json:"requests_per_sec"`
}

// Timeout returns the per-call timeout as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// MarketConfig configures the exchange market panel.
type MarketConfig struct {
	RESTURL   string `toml:"rest_url" json:"rest_url"`
	StreamURL string `toml:"stream_url" json:"stream_url"`
	Symbol    string `toml:"symbol" json:"symbol"`
	Interval  string `toml:"interval" json:"interval"`
	Limit     int    `toml:"limit" json:"limit"`
	Live      bool   `toml:"live" json:"live"`
}

// RevealConfig controls the typing animation cadence.
type RevealConfig struct {
	TextIntervalMs int `toml:"text_interval_ms" json:"text_interval_ms"`
	CodeIntervalMs int `toml:"code_interval_ms" json:"code_interval_ms"`
	CodeChunk      int `toml:"code_chunk" json:"code_chunk"`
}

// TurnConfig controls how a chat turn is sequenced.
type TurnConfig struct {
	Mode              string   `toml:"mode" json:"mode"`
	AffirmativeTokens []string `toml:"affirmative_tokens" json:"affirmative_tokens"`
	TradingKeywords   []string `toml:"trading_keywords" json:"trading_keywords"`
	GuardNonTrading   bool     `toml:"guard_non_trading" json:"guard_non_trading"`
}

// StorageConfig configures session history persistence.
type StorageConfig struct {
	Path        string `toml:"path" json:"path"`
	MaxSessions int    `toml:"max_sessions" json:"max_sessions"`
	Disabled    bool   `toml:"disabled" json:"disabled"`
}

// UIConfig holds terminal presentation settings.
type UIConfig struct {
	Theme      string `toml:"theme" json:"theme"`
	Markdown   bool   `toml:"markdown" json:"markdown"`
	ShowMarket bool   `toml:"show_market" json:"show_market"`
	PageSize   int    `toml:"page_size" json:"page_size"`
}

// LogConfig configures where the client log goes while the TUI owns the screen.
type LogConfig struct {
	Path string `toml:"path" json:"path"`
}

// Themes lists the accepted ui.theme values.
var Themes = []string{"auto", "dark", "light"}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with every field set to its built-in value.
func Default() *Config {
	tc := turn.DefaultConfig()
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:8000",
			TimeoutSecs:    180,
			MaxRetries:     2,
			RequestsPerSec: 5,
		},
		Market: MarketConfig{
			RESTURL:   market.DefaultRESTURL,
			StreamURL: market.DefaultStreamURL,
			Symbol:    market.DefaultSymbol,
			Interval:  "1h",
			Limit:     100,
			Live:      true,
		},
		Defaults: model.DefaultParams(),
		Reveal: RevealConfig{
			TextIntervalMs: int(reveal.DefaultTextInterval / time.Millisecond),
			CodeIntervalMs: int(reveal.DefaultCodeInterval / time.Millisecond),
			CodeChunk:      reveal.DefaultCodeChunk,
		},
		Turn: TurnConfig{
			Mode:              string(tc.Mode),
			AffirmativeTokens: slices.Clone(tc.AffirmativeTokens),
			TradingKeywords:   slices.Clone(tc.TradingKeywords),
			GuardNonTrading:   tc.GuardNonTrading,
		},
		Storage: StorageConfig{
			MaxSessions: 100,
		},
		UI: UIConfig{
			Theme:      "auto",
			Markdown:   true,
			ShowMarket: true,
			PageSize:   20,
		},
	}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// RevealSettings converts the reveal section into a controller config.
func (c *Config) RevealSettings() reveal.Config {
	rc := reveal.DefaultConfig()
	if c.Reveal.TextIntervalMs > 0 {
		rc.TextInterval = time.Duration(c.Reveal.TextIntervalMs) * time.Millisecond
	}
	if c.Reveal.CodeIntervalMs > 0 {
		rc.CodeInterval = time.Duration(c.Reveal.CodeIntervalMs) * time.Millisecond
	}
	if c.Reveal.CodeChunk > 0 {
		rc.CodeChunk = c.Reveal.CodeChunk
	}
	return rc
}

// TurnSettings converts the turn section into a sequencer config.
// An unparseable mode falls back to the default flow.
func (c *Config) TurnSettings() turn.Config {
	tc := turn.DefaultConfig()
	if mode, err := turn.ParseMode(c.Turn.Mode); err == nil {
		tc.Mode = mode
	}
	if len(c.Turn.AffirmativeTokens) > 0 {
		tc.AffirmativeTokens = slices.Clone(c.Turn.AffirmativeTokens)
	}
	if len(c.Turn.TradingKeywords) > 0 {
		tc.TradingKeywords = slices.Clone(c.Turn.TradingKeywords)
	}
	tc.GuardNonTrading = c.Turn.GuardNonTrading
	if c.Backend.TimeoutSecs > 0 {
		tc.CallTimeout = c.Backend.Timeout()
	}
	return tc
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeEnv overrides the configuration directory when set.
const HomeEnv = "STRATCHAT_HOME"

// ConfigDir returns the stratchat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".stratchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// StoragePath resolves the session database path.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// LogPath resolves the client log file path.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stratchat.log"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last. A file that fails to decode
// yields the defaults together with the decode error.
func Load() (*Config, error) {
	sources := []struct {
		path func() (string, error)
		load func(*Config, string) error
		kind string
	}{
		{ConfigPathTOML, LoadTOML, "TOML"},
		{ConfigPathJSON, LoadJSON, "JSON"},
	}

	var loadErr error
	for _, src := range sources {
		path, err := src.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg := Default()
		if err := src.load(cfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load %s config: %w", src.kind, err)
			continue
		}
		return finish(cfg, nil)
	}
	return finish(Default(), loadErr)
}

func finish(cfg *Config, loadErr error) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads a config from an explicit path, choosing the decoder by
// extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".toml", "":
		err = LoadTOML(cfg, path)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return finish(cfg, nil)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically as TOML.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# stratchat configuration file\n")
	b.WriteString("# The chat reloads reveal and turn settings when this file changes.\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := writeConfigFile(path, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// writeConfigFile replaces path through a synced temp file in the same
// directory, so a killed save never leaves a truncated config behind.
func writeConfigFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp, 0600)
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

// SaveJSON writes the configuration atomically as indented JSON.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := writeConfigFile(path, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if err := validateURL(c.Backend.URL, "http", "https"); err != nil {
		add("backend.url", err.Error())
	}
	if c.Backend.TimeoutSecs < 1 || c.Backend.TimeoutSecs > 3600 {
		add("backend.timeout_secs", "must be between 1 and 3600")
	}
	if c.Backend.MaxRetries < 0 || c.Backend.MaxRetries > 10 {
		add("backend.max_retries", "must be between 0 and 10")
	}
	if c.Backend.RequestsPerSec < 0 {
		add("backend.requests_per_sec", "must not be negative")
	}

	if err := validateURL(c.Market.RESTURL, "http", "https"); err != nil {
		add("market.rest_url", err.Error())
	}
	if err := validateURL(c.Market.StreamURL, "ws", "wss"); err != nil {
		add("market.stream_url", err.Error())
	}
	if strings.TrimSpace(c.Market.Symbol) == "" {
		add("market.symbol", "must not be empty")
	}
	if !slices.Contains(model.Timeframes, c.Market.Interval) {
		add("market.interval", "must be one of "+strings.Join(model.Timeframes, ", "))
	}
	if c.Market.Limit < 2 || c.Market.Limit > market.MaxLimit {
		add("market.limit", fmt.Sprintf("must be between 2 and %d", market.MaxLimit))
	}

	if err := c.Defaults.Validate(); err != nil {
		add("defaults", strings.ReplaceAll(err.Error(), "\n", "; "))
	}

	if c.Reveal.TextIntervalMs < 0 || c.Reveal.CodeIntervalMs < 0 {
		add("reveal", "intervals must not be negative")
	}
	if c.Reveal.CodeChunk < 0 {
		add("reveal.code_chunk", "must not be negative")
	}

	if _, err := turn.ParseMode(c.Turn.Mode); err != nil {
		add("turn.mode", err.Error())
	}

	if c.Storage.MaxSessions < 0 {
		add("storage.max_sessions", "must not be negative")
	}

	if !slices.Contains(Themes, c.UI.Theme) {
		add("ui.theme", "must be one of "+strings.Join(Themes, ", "))
	}
	if c.UI.PageSize < 1 || c.UI.PageSize > 500 {
		add("ui.page_size", "must be between 1 and 500")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// SetDefaults fills zero values left behind by partial config files.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Backend.URL == "" {
		c.Backend.URL = d.Backend.URL
	}
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Market.RESTURL == "" {
		c.Market.RESTURL = d.Market.RESTURL
	}
	if c.Market.StreamURL == "" {
		c.Market.StreamURL = d.Market.StreamURL
	}
	if c.Market.Symbol == "" {
		c.Market.Symbol = d.Market.Symbol
	}
	c.Market.Symbol = strings.ToUpper(c.Market.Symbol)
	if c.Market.Interval == "" {
		c.Market.Interval = d.Market.Interval
	}
	if c.Market.Limit == 0 {
		c.Market.Limit = d.Market.Limit
	}
	if c.Defaults.Timeframe == "" {
		c.Defaults.Timeframe = d.Defaults.Timeframe
	}
	if c.Turn.Mode == "" {
		c.Turn.Mode = d.Turn.Mode
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.PageSize == 0 {
		c.UI.PageSize = d.UI.PageSize
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - STRATCHAT_BACKEND_URL: overrides backend.url
//   - STRATCHAT_TIMEOUT: overrides backend.timeout_secs
//   - STRATCHAT_MODE: overrides turn.mode (simple or confirm)
//   - STRATCHAT_SYMBOL: overrides market.symbol
//   - STRATCHAT_NO_MARKET: set to "1" or "true" to hide the market panel
//   - STRATCHAT_THEME: overrides ui.theme
//   - STRATCHAT_LOG: overrides log.path
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("STRATCHAT_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("STRATCHAT_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutSecs = secs
		}
	}
	if v := os.Getenv("STRATCHAT_MODE"); v != "" {
		c.Turn.Mode = v
	}
	if v := os.Getenv("STRATCHAT_SYMBOL"); v != "" {
		c.Market.Symbol = v
	}
	if v := os.Getenv("STRATCHAT_NO_MARKET"); parseBool(v) {
		c.UI.ShowMarket = false
	}
	if v := os.Getenv("STRATCHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("STRATCHAT_LOG"); v != "" {
		c.Log.Path = v
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "turn.mode").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "defaults.stop_loss").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
// String input is parsed into the field's kind; lists are comma separated.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				items := []string{}
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Kind() != reflect.String && val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns every leaf configuration key in dot notation, in field
// order, using the file's key names.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, name, keys)
			continue
		}
		*keys = append(*keys, name)
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Turn.AffirmativeTokens = slices.Clone(c.Turn.AffirmativeTokens)
	clone.Turn.TradingKeywords = slices.Clone(c.Turn.TradingKeywords)
	return &clone
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
// On a decode error the defaults are installed and the error returned.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg != nil {
		SetGlobal(cfg)
	}
	return err
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
