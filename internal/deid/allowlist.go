package deid

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// allowlistFile is the TOML layout:
//
//	[allowlist]
//	regexes = ["Dr\\. House"]
//
//	[[rules]]
//	id = "bed-number"
//	pattern = "Bed (\\d+)"
type allowlistFile struct {
	Allowlist struct {
		Regexes []string `toml:"regexes"`
	} `toml:"allowlist"`
	Rules []Rule `toml:"rules"`
}

// LoadFile extends cfg with the allow list and extra rules from a TOML file.
// A missing file is not an error.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var f allowlistFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	cfg.AllowList = append(cfg.AllowList, f.Allowlist.Regexes...)
	cfg.Rules = append(cfg.Rules, f.Rules...)
	return nil
}
