package config

import (
	"time"

	kdl "github.com/sblinch/kdl-go"
)

// KDLConfig represents the KDL configuration structure.
// Uses kdl struct tags for unmarshaling.
type KDLConfig struct {
	Browser  KDLBrowser  `kdl:"browser"`
	Settings KDLSettings `kdl:"settings"`
}

// KDLBrowser holds browser launch defaults from KDL.
type KDLBrowser struct {
	Engine   string `kdl:"engine"`
	Headless *bool  `kdl:"headless"`
	Width    int    `kdl:"width"`
	Height   int    `kdl:"height"`
}

// KDLSettings holds daemon and timeout settings from KDL.
type KDLSettings struct {
	NavTimeout    int    `kdl:"nav-timeout"`
	ActionTimeout int    `kdl:"action-timeout"`
	SocketPath    string `kdl:"socket-path"`
}

// ParseKDL parses KDL configuration data into a Config, layering values over
// the defaults.
func ParseKDL(data string) (*Config, error) {
	var kdlCfg KDLConfig
	if err := kdl.Unmarshal([]byte(data), &kdlCfg); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if kdlCfg.Browser.Engine != "" {
		cfg.Browser.Engine = kdlCfg.Browser.Engine
	}
	if kdlCfg.Browser.Headless != nil {
		cfg.Browser.Headless = *kdlCfg.Browser.Headless
	}
	if kdlCfg.Browser.Width > 0 {
		cfg.Browser.Width = kdlCfg.Browser.Width
	}
	if kdlCfg.Browser.Height > 0 {
		cfg.Browser.Height = kdlCfg.Browser.Height
	}

	if kdlCfg.Settings.NavTimeout > 0 {
		cfg.NavTimeout = time.Duration(kdlCfg.Settings.NavTimeout) * time.Second
	}
	if kdlCfg.Settings.ActionTimeout > 0 {
		cfg.ActionTimeout = time.Duration(kdlCfg.Settings.ActionTimeout) * time.Second
	}
	if kdlCfg.Settings.SocketPath != "" {
		cfg.SocketPath = kdlCfg.Settings.SocketPath
	}

	return cfg, nil
}
