package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

var _ domain.Clock = SystemClock{}
