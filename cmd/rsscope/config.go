package main

import (
	"log"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/qmlab/rsscope/rohde"
)

// EnvPrefix is the prefix of environment variables that override the
// configuration file, e.g. RSSCOPE_SCOPE_ADDR for scope.addr
const EnvPrefix = "RSSCOPE_"

// Config is the configuration of the program
type Config struct {
	// Addr is the address the HTTP server listens on
	Addr string `koanf:"addr" yaml:"addr"`

	// Stem is the URL prefix the scope's routes are mounted under
	Stem string `koanf:"stem" yaml:"stem"`

	Scope rohde.Config `koanf:"scope" yaml:"scope"`
}

func defaultConfig() Config {
	return Config{
		Addr:  ":8000",
		Stem:  "scope",
		Scope: rohde.DefaultConfig(),
	}
}

// loadConfig layers the defaults, the file at path, and the environment,
// in that order
func loadConfig(path string) (Config, error) {
	k := koanf.New(".")
	var c Config
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return c, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			return c, err
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", envKey(k.Keys())), nil)
	if err != nil {
		return c, err
	}
	err = k.Unmarshal("", &c)
	return c, err
}

// envKey maps RSSCOPE_SCOPE_VISATIMEOUT to the known key scope.visaTimeout.
// Variables that name no known key map to "" and are dropped.
func envKey(known []string) func(string) string {
	lower := make(map[string]string, len(known))
	for _, key := range known {
		lower[strings.ToLower(key)] = key
	}
	return func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return lower[strings.ReplaceAll(s, "_", ".")]
	}
}

// watchConfig reports edits to the configuration file.  Connection
// settings are only read at startup.
func watchConfig(path string, current Config) {
	f := file.Provider(path)
	err := f.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Printf("watching %s: %v", path, err)
			return
		}
		c, err := loadConfig(path)
		if err != nil {
			log.Printf("reloading %s: %v", path, err)
			return
		}
		if c.Scope.Addr != current.Scope.Addr || c.Scope.Mode != current.Scope.Mode || c.Addr != current.Addr {
			log.Printf("%s changed; restart to apply the new connection settings", path)
			return
		}
		log.Printf("%s changed", path)
	})
	if err != nil {
		log.Printf("not watching %s: %v", path, err)
	}
}

func mkconf(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(defaultConfig())
}

func printconf(c Config) error {
	return yml.NewEncoder(os.Stdout).Encode(c)
}
