package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"powerwatch-backend/internal/rules"
	"powerwatch-backend/internal/source"
)

const (
	DefaultPollIntervalSeconds   = 60
	DefaultWorkers               = 4
	DefaultMetricsAddr           = ":9100"
	DefaultAdminPort             = "8091"
	DefaultNotifyCooldownSeconds = 900
)

type Config struct {
	Devices               []Device       `yaml:"devices"`
	Source                source.Config  `yaml:"source"`
	BusinessHours         HoursConfig    `yaml:"business_hours"`
	Database              DatabaseConfig `yaml:"database"`
	NATS                  NATSConfig     `yaml:"nats"`
	Sink                  SinkConfig     `yaml:"sink"`
	Metrics               MetricsConfig  `yaml:"metrics"`
	Admin                 AdminConfig    `yaml:"admin"`
	Workers               int            `yaml:"workers"`
	NotifyCooldownSeconds int            `yaml:"notify_cooldown_seconds"`
}

type Device struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	Address             string   `yaml:"address"`
	Checks              []string `yaml:"checks"`
	Community           string   `yaml:"community"`
	CommunityEnc        string   `yaml:"community_enc"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
}

func (d Device) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalSeconds) * time.Second
}

type HoursConfig struct {
	Days      []string `yaml:"days"`
	StartHour int      `yaml:"start_hour"`
	EndHour   int      `yaml:"end_hour"`
	Timezone  string   `yaml:"timezone"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// SinkConfig selects an optional SQL table that receives every metric sample.
// An empty Type disables the sink.
type SinkConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Table    string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type AdminConfig struct {
	Port string `yaml:"port"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.PollIntervalSeconds == 0 {
			d.PollIntervalSeconds = DefaultPollIntervalSeconds
		}
		if d.Name == "" {
			d.Name = d.ID
		}
	}
	if len(c.BusinessHours.Days) == 0 {
		c.BusinessHours.Days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	if c.BusinessHours.StartHour == 0 && c.BusinessHours.EndHour == 0 {
		c.BusinessHours.StartHour = 8
		c.BusinessHours.EndHour = 17
	}
	if c.Source.Type == "" {
		c.Source.Type = "http"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Admin.Port == "" {
		c.Admin.Port = DefaultAdminPort
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.NotifyCooldownSeconds <= 0 {
		c.NotifyCooldownSeconds = DefaultNotifyCooldownSeconds
	}
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for i, d := range c.Devices {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("devices[%d].id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d].id %q is duplicated", i, d.ID)
		}
		seen[d.ID] = true
		if len(d.Checks) == 0 {
			return fmt.Errorf("devices[%d].checks is required", i)
		}
		if d.Community != "" && d.CommunityEnc != "" {
			return fmt.Errorf("devices[%d]: community and community_enc are mutually exclusive", i)
		}
		if d.PollIntervalSeconds < 0 {
			return fmt.Errorf("devices[%d].poll_interval_seconds must be positive", i)
		}
	}
	if _, err := c.BusinessHours.Hours(); err != nil {
		return err
	}
	if c.Sink.Type != "" && strings.TrimSpace(c.Sink.Table) == "" {
		return fmt.Errorf("sink.table is required")
	}
	return nil
}

func (c *Config) Device(id string) (Device, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

func (c *Config) NotifyCooldown() time.Duration {
	return time.Duration(c.NotifyCooldownSeconds) * time.Second
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Hours converts the window to its evaluator form. An empty timezone means the
// host's local zone.
func (h HoursConfig) Hours() (rules.BusinessHours, error) {
	if h.StartHour < 0 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return rules.BusinessHours{}, fmt.Errorf("business_hours: invalid window %d-%d", h.StartHour, h.EndHour)
	}
	out := rules.BusinessHours{Start: h.StartHour, End: h.EndHour, Location: time.Local}
	for _, name := range h.Days {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return rules.BusinessHours{}, fmt.Errorf("business_hours: unknown day %q", name)
		}
		out.Days = append(out.Days, d)
	}
	if h.Timezone != "" {
		loc, err := time.LoadLocation(h.Timezone)
		if err != nil {
			return rules.BusinessHours{}, fmt.Errorf("business_hours.timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}
