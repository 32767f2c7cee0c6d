// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - The "config" command: show and change settings.
//
// Usage:
//
//	stratchat config [show]          Effective configuration as TOML
//	stratchat config get KEY         One value, e.g. turn.mode
//	stratchat config set KEY VALUE   Change and save one value
//	stratchat config keys            Every settable key
//	stratchat config path            Config file location
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/stratchat/internal/config"
)

// ConfigValue is the --json payload of config get and set.
type ConfigValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Path  string      `json:"path,omitempty"`
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) {
	exitOnError(runConfig(args))
}

func runConfig(args Args) error {
	p := NewArgParser(args.Raw)
	sub := strings.ToLower(p.Subcommand())

	switch sub {
	case "", "show":
		cfg, err := LoadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return printJSON("config", cfg)
		}
		enc := toml.NewEncoder(stdout)
		enc.Indent = "  "
		return enc.Encode(cfg)

	case "get":
		key, err := p.RequirePositional(1, "key")
		if err != nil {
			return err
		}
		cfg, err := LoadConfig(args)
		if err != nil {
			return err
		}
		v, err := cfg.Get(key)
		if err != nil {
			return unknownKey(key, err)
		}
		if args.JSON {
			return printJSON("config get", ConfigValue{Key: key, Value: v})
		}
		fmt.Fprintln(stdout, formatConfigValue(v))
		return nil

	case "set":
		key, err := p.RequirePositional(1, "key")
		if err != nil {
			return err
		}
		if p.PositionalCount() < 3 {
			return &UsageError{Msg: "missing value", Usage: "stratchat config set KEY VALUE"}
		}
		value := strings.Join(p.PositionalFrom(2), " ")
		return setConfigValue(args, key, value)

	case "keys":
		for _, key := range config.GetAllKeys() {
			fmt.Fprintln(stdout, key)
		}
		return nil

	case "path":
		path, err := configPath(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return printJSON("config path", ConfigValue{Key: "path", Value: path, Path: path})
		}
		fmt.Fprintln(stdout, path)
		return nil

	default:
		return &UsageError{Msg: fmt.Sprintf("unknown config subcommand %q", sub), Usage: "stratchat config [show|get|set|keys|path]"}
	}
}

// setConfigValue edits the file itself, so environment and flag overrides
// are never written back.
func setConfigValue(args Args, key, value string) error {
	path, err := configPath(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		load := config.LoadTOML
		if strings.EqualFold(filepath.Ext(path), ".json") {
			load = config.LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return wrapErr("config", "set", err)
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return unknownKey(key, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return wrapErr("config", "set", err)
	}
	save := config.SaveTOML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		save = config.SaveJSON
	}
	if err := save(cfg, path); err != nil {
		return wrapErr("config", "set", err)
	}

	v, _ := cfg.Get(key)
	if args.JSON {
		return printJSON("config set", ConfigValue{Key: key, Value: v, Path: path})
	}
	printSuccess(args.Quiet, "%s = %s", key, formatConfigValue(v))
	return nil
}

// configPath is --config when given, else the default TOML file.
func configPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

// unknownKey turns a lookup failure into a validation error that lists
// close keys.
func unknownKey(key string, err error) error {
	var related []string
	for _, k := range config.GetAllKeys() {
		if strings.HasPrefix(k, strings.SplitN(key, ".", 2)[0]+".") {
			related = append(related, k)
		}
	}
	verr := &ValidationError{Field: "key " + key, Reason: err.Error()}
	if len(related) > 0 {
		verr.Example = strings.Join(related, ", ")
	}
	return verr
}

func formatConfigValue(v interface{}) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}
