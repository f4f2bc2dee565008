package agent

import "time"

const (
	dfltHeaderByteCap    = 256 * 1024
	dfltIdleTimeout      = 50 * time.Millisecond
	dfltMaxHostConns     = 16
	dfltStatsFlushPeriod = 10 * time.Second
)

// Config is the Agent's tunable policy, set once at construction via
// functional options (spec §6 "external configuration surface").
type Config struct {
	HeaderByteCap      int
	AutoRedirect       bool
	PreAuthenticate    bool
	Multiplexing       bool
	MaxHostConnections int
	// IdleTimeout bounds how long the worker's transport Wait blocks with
	// no active transfers, the keep-alive check of spec §4.6 step 2. It
	// also doubles as the idle-exit grace period: a Wait that times out
	// with an empty queue and an empty table is when the worker goroutine
	// tears itself down (spec §4.6 step 6).
	IdleTimeout time.Duration
	// StatsFlushInterval is how often the Agent logs a snapshot of its
	// counters via the shared housekeeping goroutine (hk.Reg). It does
	// not gate the idle-exit timer, which runs on the worker's own
	// goroutine through IdleTimeout above.
	StatsFlushInterval time.Duration
}

func defaultConfig() Config {
	return Config{
		HeaderByteCap:      dfltHeaderByteCap,
		AutoRedirect:       true,
		PreAuthenticate:    false,
		Multiplexing:       true,
		MaxHostConnections: dfltMaxHostConns,
		IdleTimeout:        dfltIdleTimeout,
		StatsFlushInterval: dfltStatsFlushPeriod,
	}
}

type Option func(*Config)

func WithHeaderByteCap(n int) Option {
	return func(c *Config) { c.HeaderByteCap = n }
}

func WithAutoRedirect(on bool) Option {
	return func(c *Config) { c.AutoRedirect = on }
}

func WithPreAuthenticate(on bool) Option {
	return func(c *Config) { c.PreAuthenticate = on }
}

func WithMultiplexing(on bool) Option {
	return func(c *Config) { c.Multiplexing = on }
}

func WithMaxHostConnections(n int) Option {
	return func(c *Config) { c.MaxHostConnections = n }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

func WithStatsFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.StatsFlushInterval = d }
}
