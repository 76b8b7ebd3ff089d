package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version      int           `toml:"version"`
	Auth         serviceSchema `toml:"auth,omitempty"`
	PDF          serviceSchema `toml:"pdf,omitempty"`
	Dictionary   serviceSchema `toml:"dictionary,omitempty"`
	Abbreviation serviceSchema `toml:"abbreviation,omitempty"`
	Storage      storageSchema `toml:"storage,omitempty"`
	Redis        redisSchema   `toml:"redis,omitempty"`
	HTTP         httpSchema    `toml:"http,omitempty"`
	Log          logSchema     `toml:"log,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported config schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type serviceSchema struct {
	BaseURL string `toml:"base_url,omitempty"`
}

type storageSchema struct {
	Backend string `toml:"backend,omitempty"`
	Dir     string `toml:"dir,omitempty"`
}

type redisSchema struct {
	Addr     string `toml:"addr,omitempty"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
}

type httpSchema struct {
	Timeout string `toml:"timeout,omitempty"`
}

type logSchema struct {
	Level  string `toml:"level,omitempty"`
	Format string `toml:"format,omitempty"`
}
