//go:build !linux

package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/filter"
)

// TUNFactory reports the interface as unavailable on platforms without
// netlink; the filter stays off and sessions run without web blocking.
func TUNFactory(cfg TUNConfig, logger *zap.Logger) filter.DeviceFactory {
	return func() (filter.Device, error) {
		logger.Warn("Virtual interface not supported on this platform", zap.String("name", cfg.Name))
		return nil, domain.ErrInterfaceUnavailable
	}
}
