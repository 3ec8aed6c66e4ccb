package pd

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultPdPort is the well-known UDP port for PD traffic.
	// SessionConfig does not default to it: see SessionConfig.Port.
	DefaultPdPort = DefaultPort

	defaultCycleTime = 100 * time.Millisecond
	defaultTimeout   = 300 * time.Millisecond
)

// SessionConfig configures one Session: its socket binding, default
// timing, topology identity, and collaborators (clock, logger, marshal
// hooks). Validate fills in defaults and NewSession always calls it
// before use, mirroring the Config.Validate pattern used across this
// codebase's services.
type SessionConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	BindIP string
	// Port is the local UDP port to bind. Zero lets the OS pick an
	// ephemeral port, matching net.ListenUDP's own convention; callers
	// that want the well-known PD port must pass DefaultPdPort
	// explicitly.
	Port int

	// EtbTopoCnt/OpTrnTopoCnt are this session's current topology
	// counters, compared against incoming frames per §4.T. A frame
	// counter of zero always passes; with a session counter of zero,
	// only frames whose counter is also zero pass.
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32

	// DefaultCycleTime is used for a publish call that doesn't specify
	// its own interval.
	DefaultCycleTime time.Duration
	// DefaultTimeout is used for a subscribe call that doesn't specify
	// its own timeout.
	DefaultTimeout time.Duration
}

func (c *SessionConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("pd: logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.BindIP == "" {
		c.BindIP = "0.0.0.0"
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("pd: port out of range")
	}
	if c.DefaultCycleTime == 0 {
		c.DefaultCycleTime = defaultCycleTime
	}
	if c.DefaultCycleTime <= 0 {
		return errors.New("pd: default cycle time must be > 0")
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.DefaultTimeout <= 0 {
		return errors.New("pd: default timeout must be > 0")
	}
	return nil
}
