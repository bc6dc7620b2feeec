package main

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors a .vecdbctl.toml in the current directory, the
// same "flags override file, file overrides compiled-in default"
// precedence the original CLI used for its own .sift.toml.
type fileConfig struct {
	DB string `toml:"db"`
}

const configFileName = ".vecdbctl.toml"

var defaultDB = "./vecdb_data"

func loadFileConfig() {
	b, err := os.ReadFile(configFileName)
	if err != nil {
		return
	}
	var cfg fileConfig
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return
	}
	if cfg.DB != "" {
		defaultDB = cfg.DB
	}
}
