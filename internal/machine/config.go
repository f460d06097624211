package machine

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"
)

// ChannelPins is one channel's static GPIO wiring (spec.md §2/§6 hardware
// bindings). Grounded on envsrv/cfg.go's ObjSetup: a small yaml-tagged
// struct describing one device's fixed setup parameters.
type ChannelPins struct {
	GateA int `yaml:"gate_a"`
	GateB int `yaml:"gate_b"`
	DAC   int `yaml:"dac_channel"`
}

// BoardConfig is the static board/channel layout: GPIO pin numbers, bus
// addresses, and per-channel calibration safety limits. Loaded once at
// startup with gopkg.in/yaml.v2, the way envsrv.LoadYaml reads its Config.
// This is config for the board description, not live pulse parameters
// (those live in the in-memory param.Matrix, set only over the host
// protocol; spec.md names a persisted-parameter format a Non-goal).
type BoardConfig struct {
	Channels    [4]ChannelPins `yaml:"channels"`
	RailPin     int            `yaml:"rail_pin"`
	DACAddr     byte           `yaml:"dac_addr"`
	DigipotAddr byte           `yaml:"digipot_addr"`

	CalThresholdOK   float64 `yaml:"cal_threshold_ok"`
	CalThresholdOver float64 `yaml:"cal_threshold_over"`
	PreCalMaxVoltage float64 `yaml:"pre_cal_max_voltage"`
}

// DefaultBoardConfig returns the board layout used by the reference
// simulated board.
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		Channels: [4]ChannelPins{
			{GateA: 2, GateB: 3, DAC: 0},
			{GateA: 4, GateB: 5, DAC: 1},
			{GateA: 6, GateB: 7, DAC: 2},
			{GateA: 8, GateB: 9, DAC: 3},
		},
		RailPin:          10,
		DACAddr:          0x60,
		DigipotAddr:      0x2C,
		CalThresholdOK:   0.015,
		CalThresholdOver: 0.018,
		PreCalMaxVoltage: 0.015,
	}
}

// LoadBoardConfig reads path as yaml into a BoardConfig, falling back to
// DefaultBoardConfig on any field the file doesn't set.
func LoadBoardConfig(path string) (BoardConfig, error) {
	cfg := DefaultBoardConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	err = yml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// Runtime is the runtime-overridable subset of configuration: the kind of
// operator-tunable value that should survive a config push without a
// reboot. Grounded on cmd/multiserver/main.go's koanf.New(".") loader
// layered over structs.Provider defaults and file.Provider+yaml.Parser.
type Runtime struct {
	DefaultMaxPower  float64       `koanf:"default_max_power"`
	SequencerPeriod  time.Duration `koanf:"sequencer_period"`
	LogLevel         string        `koanf:"log_level"`
}

// DefaultRuntime returns the runtime defaults used when no config file
// overrides them.
func DefaultRuntime() Runtime {
	return Runtime{
		DefaultMaxPower: 1.0,
		SequencerPeriod: 0,
		LogLevel:        "info",
	}
}

// LoadRuntime layers path's yaml contents over DefaultRuntime, the same
// structs.Provider-then-file.Provider sequence cmd/multiserver/main.go's
// setupconfig uses.
func LoadRuntime(path string) (Runtime, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultRuntime(), "koanf"), nil); err != nil {
		return Runtime{}, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return Runtime{}, err
		}
	}
	var rt Runtime
	if err := k.Unmarshal("", &rt); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}

// WatchRuntime watches path for changes and calls onChange with the
// reloaded Runtime after every write, so an operator can push a new
// default_max_power/sequencer_period/log_level without a reboot (Runtime's
// doc comment: "the kind of operator-tunable value that should survive a
// config push without a reboot"). Grounded on fsnotify's standard
// NewWatcher/Add/Events loop; reload errors are logged to stderr and do
// not stop the watch. The returned stop func closes the watcher.
func WatchRuntime(path string, onChange func(Runtime)) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rt, err := LoadRuntime(path)
				if err != nil {
					log.Printf("machine: reloading %s: %v", path, err)
					continue
				}
				onChange(rt)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("machine: config watch error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}
