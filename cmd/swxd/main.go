// swxd is the pulse generator firmware's process entrypoint: it loads
// board/runtime configuration, wires a Machine to a board (simulated, in
// this reference build, since real GPIO/I2C bindings and the host
// transport are external collaborators per spec.md §1), runs calibration,
// and starts the two cooperative loops. Grounded on
// cmd/multiserver/main.go's subcommand-dispatch shape.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	yml "gopkg.in/yaml.v2"

	"github.com/saawsm/swx-go/internal/host"
	"github.com/saawsm/swx-go/internal/machine"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/swx"
)

// Version is the firmware build string, typically injected via ldflags.
var Version = "dev"

const (
	boardConfigFile   = "swx-board.yml"
	runtimeConfigFile = "swx-runtime.yml"
)

func root() {
	fmt.Println(`swxd drives a four-channel programmable pulse generator board.

Usage:
	swxd <command>

Commands:
	run
	mkconf
	conf
	version`)
}

func mkconf() {
	board := machine.DefaultBoardConfig()
	f, err := os.Create(boardConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(board); err != nil {
		log.Fatal(err)
	}

	rt := machine.DefaultRuntime()
	rf, err := os.Create(runtimeConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	defer rf.Close()
	if err := yml.NewEncoder(rf).Encode(rt); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	board, err := machine.LoadBoardConfig(boardConfigFile)
	if err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(board); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("swxd version %v\n", Version)
}

// buildSimulatedBoard wires a Machine to an in-memory GPIO/I2C board, the
// way a real build would wire cdev/i2c-dev handles instead. No component
// above platform.GPIO/platform.I2CBus knows the difference.
func buildSimulatedBoard(board machine.BoardConfig, rt machine.Runtime) *machine.Machine {
	bus := platform.NewSimI2CBus()

	var gpios [4][2]platform.GPIO
	for i, pins := range board.Channels {
		_ = pins
		gpios[i] = [2]platform.GPIO{platform.NewSimGPIO(), platform.NewSimGPIO()}
	}
	railPin := platform.NewSimGPIO()
	powerLatchPin := platform.NewSimGPIO()

	start := time.Now()
	now := func() uint32 { return uint32(time.Since(start).Microseconds()) }

	return machine.New(board, rt, bus, gpios, railPin, powerLatchPin, now)
}

func run() {
	board, err := machine.LoadBoardConfig(boardConfigFile)
	if err != nil {
		log.Fatalf("swxd: loading board config: %v", err)
	}
	rt, err := machine.LoadRuntime(runtimeConfigFile)
	if err != nil {
		log.Fatalf("swxd: loading runtime config: %v", err)
	}

	m := buildSimulatedBoard(board, rt)
	m.VersionInfo = host.VersionInfo{Protocol: 1, Firmware: 1, Build: Version}
	m.RebootToBootloader = func() {
		log.Println("swxd: bootloader entry requested (external collaborator, no-op in this build)")
	}

	if m.CheckBoardMissing() {
		log.Println("swxd: output board missing at boot, scramming and halting")
		m.Output.Scram()
		return
	}

	m.Calibrate()
	for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
		log.Printf("swxd: channel %d calibrated to status=%s cal_value=%d", ch, m.ChStatus(ch), m.Output.CalValue(ch))
	}

	// The host command table is built here so a future transport layer
	// (COBS framing, the wire protocol's byte encoding) has a ready-made
	// Handler to dispatch into; driving it from bytes on a link is outside
	// this module's scope (spec.md §1 Non-goals).
	_ = host.NewCommandTable()

	stopWatch, err := machine.WatchRuntime(runtimeConfigFile, func(rt machine.Runtime) {
		log.Printf("swxd: runtime config reloaded: %+v", rt)
		m.Runtime = rt
		m.Sequencer.PeriodUS = uint32(rt.SequencerPeriod.Microseconds())
		for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
			m.SetMaxPower(ch, rt.DefaultMaxPower)
		}
	})
	if err != nil {
		log.Printf("swxd: runtime config watch disabled: %v", err)
	} else {
		defer stopWatch()
	}

	go m.RunRealtimeLoop()

	trigInputs := func() uint8 { return 0 }
	log.Println("swxd: running")
	m.RunControlLoop(trigInputs)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	switch strings.ToLower(args[1]) {
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("swxd: unknown command")
	}
}
