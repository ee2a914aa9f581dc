// Package config loads the settings of a simulation run from a TOML file and
// from PAGESIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sirupsen/logrus"
)

// EnvPrefix starts the name of every environment variable read by Load.
const EnvPrefix = "PAGESIM_"

// ErrInvalidConfig is returned when a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings of a simulation run.
type Config struct {
	RAMSize     uint64   `toml:"ram_size"`
	SwapSizes   []uint64 `toml:"swap_sizes"`
	ActiveSwap  int      `toml:"active_swap"`
	AddressMode string   `toml:"address_mode"`
	LogLevel    string   `toml:"log_level"`
	RecordPath  string   `toml:"record_path"`
	MonitorPort int      `toml:"monitor_port"`
}

// Default returns 1 MiB of RAM, one 16 MiB swap device, and the five-level
// layout.
func Default() Config {
	return Config{
		RAMSize:     1 << 20,
		SwapSizes:   []uint64{16 << 20},
		ActiveSwap:  0,
		AddressMode: "mm64",
		LogLevel:    "info",
	}
}

// Load starts from the defaults, applies the TOML file if path is not empty,
// then the variables of the env file, then the process environment. A missing
// env file is ignored.
func Load(path, envFile string) (Config, error) {
	c := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return c, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	env, err := readEnv(envFile)
	if err != nil {
		return c, err
	}

	if err := c.ApplyEnv(env); err != nil {
		return c, err
	}

	return c, c.Validate()
}

func readEnv(envFile string) (map[string]string, error) {
	env := map[string]string{}

	if envFile != "" {
		fromFile, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}

		for k, v := range fromFile {
			env[k] = v
		}
	}

	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}

	return env, nil
}

// ApplyEnv overrides settings with the PAGESIM_* entries of env. Swap sizes
// are a comma separated list.
func (c *Config) ApplyEnv(env map[string]string) error {
	var err error

	for key, val := range env {
		name, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok {
			continue
		}

		switch name {
		case "RAM_SIZE":
			c.RAMSize, err = strconv.ParseUint(val, 0, 64)
		case "SWAP_SIZES":
			c.SwapSizes, err = parseSizes(val)
		case "ACTIVE_SWAP":
			c.ActiveSwap, err = strconv.Atoi(val)
		case "ADDRESS_MODE":
			c.AddressMode = val
		case "LOG_LEVEL":
			c.LogLevel = val
		case "RECORD_PATH":
			c.RecordPath = val
		case "MONITOR_PORT":
			c.MonitorPort, err = strconv.Atoi(val)
		default:
			continue
		}

		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
	}

	return nil
}

func parseSizes(val string) ([]uint64, error) {
	if strings.TrimSpace(val) == "" {
		return nil, nil
	}

	var sizes []uint64
	for _, f := range strings.Split(val, ",") {
		size, err := strconv.ParseUint(strings.TrimSpace(f), 0, 64)
		if err != nil {
			return nil, err
		}

		sizes = append(sizes, size)
	}

	return sizes, nil
}

// Validate checks that every setting can be simulated.
func (c Config) Validate() error {
	layout, err := c.Layout()
	if err != nil {
		return err
	}

	pageSize := layout.PageSize()

	if err := sizeMustFit("ram_size", c.RAMSize, pageSize, vm.MaxFPN); err != nil {
		return err
	}

	if uint64(len(c.SwapSizes)) > vm.MaxSwapType+1 {
		return fmt.Errorf("%w: %d swap devices", ErrInvalidConfig,
			len(c.SwapSizes))
	}

	for i, size := range c.SwapSizes {
		name := fmt.Sprintf("swap_sizes[%d]", i)
		if err := sizeMustFit(name, size, pageSize, vm.MaxSwapOffset); err != nil {
			return err
		}
	}

	if len(c.SwapSizes) > 0 &&
		(c.ActiveSwap < 0 || c.ActiveSwap >= len(c.SwapSizes)) {
		return fmt.Errorf("%w: active_swap %d", ErrInvalidConfig, c.ActiveSwap)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor_port %d", ErrInvalidConfig,
			c.MonitorPort)
	}

	return nil
}

func sizeMustFit(name string, size, pageSize, maxFrame uint64) error {
	if size == 0 || size%pageSize != 0 {
		return fmt.Errorf("%w: %s %d is not a positive multiple of %d",
			ErrInvalidConfig, name, size, pageSize)
	}

	if size/pageSize-1 > maxFrame {
		return fmt.Errorf("%w: %s %d holds more than %d frames",
			ErrInvalidConfig, name, size, maxFrame+1)
	}

	return nil
}

// Layout returns the address layout selected by the address mode.
func (c Config) Layout() (vm.Layout, error) {
	layout, err := vm.LayoutFor(c.AddressMode)
	if err != nil {
		return layout, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return layout, nil
}

// Level returns the log level.
func (c Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return level, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return level, nil
}
