package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/session"
)

type daemonConfig struct {
	ListenAddr        string
	WSAddr            string
	MetricsAddr       string
	ReadTimeout       time.Duration
	HeartbeatInterval time.Duration
	ButtonInterval    time.Duration
	QueueCapacity     int
	QueuePolicy       bus.Policy
	DispatchMode      session.Mode
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		ListenAddr:        ":8080",
		WSAddr:            "",
		MetricsAddr:       "",
		ReadTimeout:       30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		ButtonInterval:    0,
		QueueCapacity:     bus.DefaultCapacity,
		QueuePolicy:       bus.PolicyBlock,
		DispatchMode:      session.ModeDirect,
	}
}

type fileConfig struct {
	Listen            string `toml:"listen"`
	WSListen          string `toml:"ws_listen"`
	MetricsListen     string `toml:"metrics_listen"`
	ReadTimeout       string `toml:"read_timeout"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	ButtonInterval    string `toml:"button_interval"`
	QueueCapacity     int    `toml:"queue_capacity"`
	QueuePolicy       string `toml:"queue_policy"`
	DispatchMode      string `toml:"dispatch_mode"`
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("listen") {
		if addr := strings.TrimSpace(raw.Listen); addr != "" {
			cfg.ListenAddr = addr
		}
	}
	if meta.IsDefined("ws_listen") {
		cfg.WSAddr = strings.TrimSpace(raw.WSListen)
	}
	if meta.IsDefined("metrics_listen") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsListen)
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatInterval))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse heartbeat_interval: %w", err)
		}
		cfg.HeartbeatInterval = d
	}
	if meta.IsDefined("button_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ButtonInterval))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse button_interval: %w", err)
		}
		cfg.ButtonInterval = d
	}
	if meta.IsDefined("queue_capacity") {
		cfg.QueueCapacity = raw.QueueCapacity
	}
	if meta.IsDefined("queue_policy") {
		p, err := bus.ParsePolicy(raw.QueuePolicy)
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.QueuePolicy = p
	}
	if meta.IsDefined("dispatch_mode") {
		m, err := session.ParseMode(raw.DispatchMode)
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.DispatchMode = m
	}

	if err := validateDaemonConfig(cfg); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}

func validateDaemonConfig(cfg daemonConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("config: listen address required")
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("config: read_timeout must be positive")
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: heartbeat_interval must be positive")
	}
	if cfg.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive")
	}
	return nil
}
