// SPDX-License-Identifier: MIT

// Package config implements the Config Store: a single, atomically-swapped
// configuration snapshot read by every other component and written only
// through the HTTP config-administration surface or a SIGHUP reload.
//
// The wire format is TOML. Struct marshal/unmarshal for the direct
// get_source_toml/set_source_toml round trip goes through
// github.com/pelletier/go-toml/v2; layered loading (file + environment
// variable overrides) goes through github.com/knadh/koanf/v2.
package config

import (
	"fmt"
	"regexp"
	"time"
)

// Duration wraps time.Duration so it round-trips through TOML as a humantime
// string ("5s", "24h") instead of an integer count of nanoseconds.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// YtarchiveConfig holds settings for the ytarchive recorder backend.
type YtarchiveConfig struct {
	ExecutablePath   string   `toml:"executable_path" koanf:"executable_path"`
	WorkingDirectory string   `toml:"working_directory" koanf:"working_directory"`
	Args             []string `toml:"args" koanf:"args"`
	Quality          string   `toml:"quality" koanf:"quality"`
	DelayStart       Duration `toml:"delay_start" koanf:"delay_start"`
}

// YtdlpConfig holds settings for the yt-dlp recorder backend, read by
// channels whose recorder field selects "yt-dlp". The section may be
// omitted: Validate defaults its executable path to "yt-dlp".
type YtdlpConfig struct {
	ExecutablePath   string   `toml:"executable_path" koanf:"executable_path"`
	WorkingDirectory string   `toml:"working_directory" koanf:"working_directory"`
	Args             []string `toml:"args" koanf:"args"`
	Quality          string   `toml:"quality" koanf:"quality"`
	DelayStart       Duration `toml:"delay_start" koanf:"delay_start"`
}

// ScraperRSSConfig configures the Feed Poller.
type ScraperRSSConfig struct {
	PollInterval    Duration `toml:"poll_interval" koanf:"poll_interval"`
	IgnoreOlderThan Duration `toml:"ignore_older_than" koanf:"ignore_older_than"`
}

// ScraperConfig wraps the feed-poller settings; the nesting mirrors the
// upstream schema's scraper.rss table so a future scraper.atom or
// scraper.community-posts table has an obvious home.
type ScraperConfig struct {
	RSS ScraperRSSConfig `toml:"rss" koanf:"rss"`
}

// NotifierDiscordConfig configures the Discord-shaped webhook notifier.
type NotifierDiscordConfig struct {
	WebhookURL string   `toml:"webhook_url" koanf:"webhook_url"`
	NotifyOn   []string `toml:"notify_on" koanf:"notify_on"`
}

// NotifierConfig is the optional notifier table.
type NotifierConfig struct {
	Discord *NotifierDiscordConfig `toml:"discord" koanf:"discord"`
}

// WebserverConfig is the optional HTTP API bind spec.
type WebserverConfig struct {
	BindAddress string `toml:"bind_address" koanf:"bind_address"`
	UnixPath    string `toml:"unix_path" koanf:"unix_path"`
	StaticDir   string `toml:"static_dir" koanf:"static_dir"`
}

// ChannelSpec is one configured channel to watch.
type ChannelSpec struct {
	ID               string   `toml:"id" koanf:"id"`
	Name             string   `toml:"name" koanf:"name"`
	Filters          []string `toml:"filters" koanf:"filters"`
	OutPath          string   `toml:"outpath" koanf:"outpath"`
	PictureURL       string   `toml:"picture_url,omitempty" koanf:"picture_url"`
	MatchDescription bool     `toml:"match_description,omitempty" koanf:"match_description"`
	Recorder         string   `toml:"recorder" koanf:"recorder"`

	compiled []*regexp.Regexp
}

// CompiledFilters lazily compiles and caches this channel's filter patterns.
func (c *ChannelSpec) CompiledFilters() ([]*regexp.Regexp, error) {
	if c.compiled != nil {
		return c.compiled, nil
	}
	out := make([]*regexp.Regexp, 0, len(c.Filters))
	for _, pattern := range c.Filters {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("channel %s: invalid filter %q: %w", c.ID, pattern, err)
		}
		out = append(out, re)
	}
	c.compiled = out
	return out, nil
}

// Matches reports whether title (and, if enabled, description) satisfies any
// of the channel's OR-combined filters.
func (c *ChannelSpec) Matches(title, description string) (bool, error) {
	filters, err := c.CompiledFilters()
	if err != nil {
		return false, err
	}
	for _, re := range filters {
		if re.MatchString(title) {
			return true, nil
		}
		if c.MatchDescription && re.MatchString(description) {
			return true, nil
		}
	}
	return false, nil
}

// Config is the full runtime configuration snapshot.
type Config struct {
	Ytarchive YtarchiveConfig  `toml:"ytarchive" koanf:"ytarchive"`
	Ytdlp     YtdlpConfig      `toml:"ytdlp" koanf:"ytdlp"`
	Scraper   ScraperConfig    `toml:"scraper" koanf:"scraper"`
	Notifier  *NotifierConfig  `toml:"notifier,omitempty" koanf:"notifier"`
	Webserver *WebserverConfig `toml:"webserver,omitempty" koanf:"webserver"`
	Channel   []ChannelSpec    `toml:"channel" koanf:"channel"`
}

// Validate checks the structural invariants the rest of the system assumes
// hold for any loaded Config: a backend executable per recorder flavor in
// use, and per channel an id, an outpath, a recognised recorder and filters
// that compile. A channel with no filters is accepted and matches nothing.
func (c *Config) Validate() error {
	if len(c.Channel) == 0 {
		return fmt.Errorf("config: at least one [[channel]] is required")
	}
	seen := make(map[string]struct{}, len(c.Channel))
	for i := range c.Channel {
		ch := &c.Channel[i]
		if ch.ID == "" {
			return fmt.Errorf("config: channel[%d] missing id", i)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("config: duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
		switch ch.Recorder {
		case "", "ytarchive":
			ch.Recorder = "ytarchive"
		case "yt-dlp":
		default:
			return fmt.Errorf("config: channel %q: unknown recorder %q", ch.ID, ch.Recorder)
		}
		if ch.OutPath == "" {
			return fmt.Errorf("config: channel %q missing outpath", ch.ID)
		}
		if _, err := ch.CompiledFilters(); err != nil {
			return err
		}
	}
	if c.Ytarchive.ExecutablePath == "" {
		c.Ytarchive.ExecutablePath = "ytarchive"
	}
	if c.Ytdlp.ExecutablePath == "" {
		c.Ytdlp.ExecutablePath = "yt-dlp"
	}
	if c.Scraper.RSS.PollInterval == 0 {
		c.Scraper.RSS.PollInterval = Duration(time.Minute)
	}
	if c.Notifier != nil && c.Notifier.Discord != nil {
		for _, s := range c.Notifier.Discord.NotifyOn {
			if _, ok := validNotifyOn[s]; !ok {
				return fmt.Errorf("config: notifier.discord.notify_on: unknown status %q", s)
			}
		}
	}
	return nil
}

var validNotifyOn = map[string]struct{}{
	"waiting": {}, "recording": {}, "done": {}, "failed": {},
}

// Default returns a minimally-valid Config suitable as a starting point for
// the interactive setup wizard.
func Default() *Config {
	return &Config{
		Ytarchive: YtarchiveConfig{
			ExecutablePath: "ytarchive",
			Quality:        "best",
			DelayStart:     Duration(5 * time.Second),
		},
		Ytdlp: YtdlpConfig{
			ExecutablePath: "yt-dlp",
			Quality:        "best",
			DelayStart:     Duration(5 * time.Second),
		},
		Scraper: ScraperConfig{
			RSS: ScraperRSSConfig{
				PollInterval:    Duration(time.Minute),
				IgnoreOlderThan: Duration(24 * time.Hour),
			},
		},
	}
}
