package config

import (
	"path/filepath"
	"time"

	"orderflow-signals/internal/broadcast"
	"orderflow-signals/internal/engine"
	"orderflow-signals/internal/logging"
	"orderflow-signals/internal/models"
	"orderflow-signals/internal/session"
	"orderflow-signals/internal/stream"
	"orderflow-signals/internal/supervise"
)

// InstrumentList converts the configured instruments to model values.
func (c *Config) InstrumentList() []models.Instrument {
	out := make([]models.Instrument, 0, len(c.Instruments))
	for _, ins := range c.Instruments {
		out = append(out, models.Instrument{
			Symbol: ins.Symbol,
			Token:  ins.Token,
			Name:   ins.Name,
		})
	}
	return out
}

// SessionBoundaries converts the session section to clock boundaries.
func (c *Config) SessionBoundaries() session.Boundaries {
	weekdays := make(map[time.Weekday]bool, len(c.Session.Weekdays))
	for _, wd := range c.Session.Weekdays {
		weekdays[time.Weekday(wd)] = true
	}
	return session.Boundaries{
		PreOpenStart: c.Session.PreOpenStartMinute,
		Open:         c.Session.OpenMinute,
		Close:        c.Session.CloseMinute,
		Weekdays:     weekdays,
	}
}

// SessionLocation resolves the configured timezone, falling back to a
// fixed IST offset when the zone database is unavailable.
func (c *Config) SessionLocation() *time.Location {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// EngineConfig converts the engine section to engine coefficients.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		TrendScale:    c.Engine.TrendScale,
		ModerateScale: c.Engine.ModerateScale,
		ModerateCap:   c.Engine.ModerateCap,
	}
}

// BroadcastConfig converts the broadcast section.
func (c *Config) BroadcastConfig() broadcast.Config {
	return broadcast.Config{
		Interval:     c.Broadcast.Interval,
		FetchTimeout: c.Broadcast.FetchTimeout,
	}
}

// HubConfig converts the subscriber buffer setting.
func (c *Config) HubConfig() stream.HubConfig {
	return stream.HubConfig{SubscriberBufferSize: c.Broadcast.SubscriberBuffer}
}

// SupervisorConfig converts the supervisor section.
func (c *Config) SupervisorConfig() supervise.Config {
	return supervise.Config{
		Interval:       c.Supervisor.Interval,
		GraceIntervals: c.Supervisor.GraceIntervals,
		MaxRestarts:    c.Supervisor.MaxRestarts,
	}
}

// LogConfig converts the logging section, defaulting the log file next
// to the config directory.
func (c *Config) LogConfig(configDir string) logging.LogConfig {
	path := c.Logging.FilePath
	if path == "" {
		path = filepath.Join(configDir, "signald.log")
	}
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   path,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
	}
}

// StorePath resolves the database path, defaulting into the config dir.
func (c *Config) StorePath(configDir string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(configDir, "signals.db")
}
