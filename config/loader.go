package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KIRIMI"

// ErrProfileNotFound is returned when a named profile is not in the file.
var ErrProfileNotFound = errors.New("profile not found")

// File is the decoded form of a config file.
type File struct {
	DefaultProfile string             `mapstructure:"default_profile"`
	Profiles       map[string]Profile `mapstructure:"profiles"`
}

// Names returns the profile names in sorted order.
func (f File) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadOptions selects what Load reads.
type LoadOptions struct {
	// Path is the config file. When empty, "kirimi.{yaml,json,toml}" is
	// searched in the working directory and then in $HOME/.config/kirimi.
	// A missing file is not an error; an explicit Path that is missing is.
	Path string

	// Profile picks the profile. When empty, the file's default_profile is
	// used, then a profile named "default", and otherwise an empty profile.
	// Names match case-insensitively since viper lowercases map keys.
	Profile string

	// EnvFile is the .env file loaded before environment overrides. When
	// empty, ".env" next to the config file (or in the working directory)
	// is tried.
	EnvFile string
}

// Load reads the config file, selects a profile and applies environment
// overrides to it.
func Load(opts LoadOptions) (Profile, error) {
	v := viper.New()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
	} else {
		v.SetConfigName("kirimi")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "kirimi"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.Path != "" || !errors.As(err, &notFound) {
			return Profile{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := loadEnvFile(opts.EnvFile, v.ConfigFileUsed()); err != nil {
		return Profile{}, err
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return Profile{}, fmt.Errorf("decode config: %w", err)
	}

	profile, err := file.Select(opts.Profile)
	if err != nil {
		return Profile{}, err
	}

	if err := applyEnv(&profile); err != nil {
		return Profile{}, err
	}

	if err := profile.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", profile.Name, err)
	}
	return profile, nil
}

// Select returns the named profile, falling back as described on
// LoadOptions.Profile when name is empty.
func (f File) Select(name string) (Profile, error) {
	if name == "" {
		name = f.DefaultProfile
	}
	if name == "" {
		if _, ok := f.Profiles["default"]; !ok {
			return Profile{}, nil
		}
		name = "default"
	}

	name = strings.ToLower(name)
	p, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (have %s)", ErrProfileNotFound, name, strings.Join(f.Names(), ", "))
	}
	p.Name = name
	return p, nil
}

// loadEnvFile loads a .env file without overriding variables that are
// already set.
func loadEnvFile(explicit, configFile string) error {
	if explicit != "" {
		if err := godotenv.Load(explicit); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}

	dir := "."
	if configFile != "" {
		dir = filepath.Dir(configFile)
	}
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// applyEnv overrides profile fields from KIRIMI_* variables.
func applyEnv(p *Profile) error {
	env := viper.New()
	env.SetEnvPrefix(EnvPrefix)
	env.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	env.AutomaticEnv()

	if env.IsSet("base_url") {
		p.BaseURL = env.GetString("base_url")
	}
	if env.IsSet("timeout") {
		d, err := parseDurationEnv(env.GetString("timeout"))
		if err != nil {
			return fmt.Errorf("%s_TIMEOUT: %w", EnvPrefix, err)
		}
		p.Timeout = d
	}
	if env.IsSet("debug") {
		p.Debug = env.GetBool("debug")
	}
	if env.IsSet("request_id_header") {
		p.RequestIDHeader = env.GetString("request_id_header")
	}
	if env.IsSet("accept_status") {
		p.AcceptStatus = env.GetString("accept_status")
	}
	return nil
}

// parseDurationEnv accepts Go durations ("2s") and bare milliseconds ("1500").
func parseDurationEnv(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
