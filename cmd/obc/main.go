// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	obc "github.com/ZaparooProject/go-obc"
	"github.com/ZaparooProject/go-obc/internal/config"
)

type cliConfig struct {
	configPath  string
	bus         string
	fallbackBus string
	emulator    string
	storage     string
	sessionLog  string
	debug       bool
	simulate    bool
}

// Package-level flag variables
var (
	flagConfig      string
	flagBus         string
	flagFallbackBus string
	flagEmulator    string
	flagStorage     string
	flagSessionLog  string
	flagDebug       bool
	flagSimulate    bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Mission configuration file (YAML)")
	flag.StringVar(&flagBus, "bus", "", "Primary I2C bus, overrides bus.primary")
	flag.StringVar(&flagFallbackBus, "fallback-bus", "", "Fallback I2C bus, overrides bus.fallback")
	flag.StringVar(&flagEmulator, "emulator", "", "Serial port of the radio emulator bridge")
	flag.StringVar(&flagStorage, "storage", "", "Storage root directory, overrides storage.root")
	flag.StringVar(&flagSessionLog, "session-log", "", "Directory for a session log file")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagSimulate, "simulate", false, "Run against simulated devices")

	// glog writes to files by default
	_ = flag.Set("logtostderr", "true")
}

func parseConfig() *cliConfig {
	cfg := &cliConfig{
		configPath:  flagConfig,
		bus:         flagBus,
		fallbackBus: flagFallbackBus,
		emulator:    flagEmulator,
		storage:     flagStorage,
		sessionLog:  flagSessionLog,
		debug:       flagDebug,
		simulate:    flagSimulate,
	}

	if cfg.debug {
		obc.SetDebugEnabled(true)
	}

	return cfg
}

// loadConfig reads the mission configuration and applies the flag
// overrides.
func loadConfig(cli *cliConfig) (*config.Config, error) {
	cfg := config.Default()
	if cli.configPath != "" {
		loaded, err := config.Load(cli.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cli.bus != "" {
		cfg.Bus.Primary = cli.bus
	}
	if cli.fallbackBus != "" {
		cfg.Bus.Fallback = cli.fallbackBus
	}
	if cli.emulator != "" {
		cfg.Bus.Emulator = cli.emulator
	}
	if cli.storage != "" {
		cfg.Storage.Root = cli.storage
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cli *cliConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	if cli.sessionLog != "" {
		path, logErr := obc.InitSessionLog(cli.sessionLog)
		if logErr != nil {
			return logErr
		}
		defer func() { _ = obc.CloseSessionLog() }()
		obc.Infof("session log: %s", path)
	}

	env, err := openEnvironment(ctx, cfg, cli.simulate)
	if err != nil {
		return err
	}
	defer env.Close()

	sys, err := newSystem(cfg, env)
	if err != nil {
		return err
	}
	if err := sys.Start(ctx); err != nil {
		sys.Stop()
		return err
	}
	obc.Infof("on-board computer running on %s", env.busName)

	<-ctx.Done()
	sys.Stop()
	return ctx.Err()
}

func main() {
	flag.Parse()
	code := mainWithExitCode()
	glog.Flush()
	os.Exit(code)
}

func mainWithExitCode() int {
	cli := parseConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		obc.Infof("shutting down")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		obc.Errorf("%v", err)
		return 1
	}
	return 0
}
