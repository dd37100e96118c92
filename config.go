package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const defaultConfigFile = "configuration.yaml"

type rtuData struct {
	Devicename string
	Baudrate   int
	Parity     string
	Stopbits   int
	Timeout    int // milliseconds
}

type readData struct {
	Start  uint16
	Count  uint16
	Format string
}

type probeData struct {
	Start      uint16
	Prefix     []uint16
	Iterations int
	ThenRead   bool `yaml:"then_read"`
}

type serverData struct {
	Bus       rtuData
	ID        byte
	Registers int
	MaxValue  uint16 `yaml:"max_value"`
}

type mqttData struct {
	Host                string
	Port                uint
	QoS                 byte
	TopicPrefix         string `yaml:"topic_prefix"`
	HassdiscoveryPrefix string `yaml:"hassdiscovery_prefix"`
}

type configData struct {
	Name   string
	Bus    rtuData
	Slave  byte
	Read   readData
	Probe  probeData
	Server serverData
	MQTT   mqttData
}

// defaultConfig matches the bench scripts: /dev/ttyUSB1 at 115200 baud,
// slave 0x37, read 5 registers from 1, write [1 2 i] to 1 for i up to 9999.
func defaultConfig() configData {
	return configData{
		Name: "regprobe",
		Bus: rtuData{
			Devicename: "/dev/ttyUSB1",
			Baudrate:   115200,
			Parity:     "N",
			Stopbits:   1,
			Timeout:    1000,
		},
		Slave: 0x37,
		Read:  readData{Start: 1, Count: 5, Format: "uint16"},
		Probe: probeData{
			Start:      1,
			Prefix:     []uint16{1, 2},
			Iterations: 9999,
			ThenRead:   true,
		},
		Server: serverData{
			Bus: rtuData{
				Devicename: "/dev/ttyUSB2",
				Baudrate:   115200,
				Parity:     "N",
				Stopbits:   1,
				Timeout:    1000,
			},
			ID:        0x37,
			Registers: 256,
		},
		MQTT: mqttData{
			Port:                1883,
			TopicPrefix:         "regprobe",
			HassdiscoveryPrefix: "homeassistant",
		},
	}
}

// parseConfiguration loads cfgFn over the defaults. A missing file is only an
// error when the caller asked for it explicitly.
func parseConfiguration(cfgFn string, explicit bool) (configData, error) {
	cfg := defaultConfig()

	cfgData, err := ioutil.ReadFile(cfgFn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s: %w", cfgFn, err)
	}

	if err = yaml.Unmarshal(cfgData, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", cfgFn, err)
	}
	return cfg, nil
}

func (bus rtuData) timeout() time.Duration {
	return time.Duration(bus.Timeout) * time.Millisecond
}

func (bus rtuData) validate() error {
	if bus.Devicename == "" {
		return fmt.Errorf("no serial device configured")
	}
	if bus.Baudrate <= 0 {
		return fmt.Errorf("invalid baud rate %d", bus.Baudrate)
	}
	switch strings.ToUpper(bus.Parity) {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity %q (should be one of N, E or O)", bus.Parity)
	}
	if bus.Stopbits != 1 && bus.Stopbits != 2 {
		return fmt.Errorf("invalid stop bits %d", bus.Stopbits)
	}
	if bus.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %dms", bus.Timeout)
	}
	return nil
}

func (cfg configData) validate() error {
	if err := cfg.Bus.validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	if cfg.Read.Count < 1 || cfg.Read.Count > maxReadCount {
		return fmt.Errorf("read: count %d must be between 1 and %d", cfg.Read.Count, maxReadCount)
	}
	if int(cfg.Read.Start)+int(cfg.Read.Count) > 0x10000 {
		return fmt.Errorf("read: %d registers from %d runs past the register space", cfg.Read.Count, cfg.Read.Start)
	}
	if _, ok := formatters[cfg.Read.Format]; !ok {
		return fmt.Errorf("read: unknown format %q", cfg.Read.Format)
	}
	if len(cfg.Probe.Prefix)+1 > maxWriteCount {
		return fmt.Errorf("probe: prefix of %d values leaves no room in a %d register write", len(cfg.Probe.Prefix), maxWriteCount)
	}
	if cfg.Probe.Iterations < 0 {
		return fmt.Errorf("probe: negative iteration count %d", cfg.Probe.Iterations)
	}
	return nil
}

func (cfg configData) validateServer() error {
	if err := cfg.Server.Bus.validate(); err != nil {
		return fmt.Errorf("server bus: %w", err)
	}
	if cfg.Server.Registers < 1 || cfg.Server.Registers > 0x10000 {
		return fmt.Errorf("server: register count %d out of range", cfg.Server.Registers)
	}
	return nil
}
