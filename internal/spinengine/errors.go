package spinengine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/eligibility"
)

var (
	ErrLoginRequired   = errors.New("login required to spin")
	ErrAlreadySpinning = errors.New("wheel is already spinning")
	ErrClosed          = errors.New("spin engine closed")
)

// CooldownError is returned while the user's cooldown is running.
type CooldownError struct {
	Remaining time.Duration
	Reason    string
}

func (e *CooldownError) Error() string {
	if e.Reason != "" {
		return "cannot spin: " + e.Reason
	}
	return fmt.Sprintf("cannot spin: wait %s", eligibility.FormatRemaining(e.Remaining))
}

// ConfigError wraps an invalid segment configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "wheel configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
