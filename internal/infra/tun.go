package infra

import (
	"net/netip"

	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// TUNConfig describes the virtual interface used by the traffic filter.
type TUNConfig struct {
	Name      string
	Address   string   // CIDR, e.g. 10.0.0.2/24
	Routes    []string // CIDRs routed through the interface
	DNSServer string   // gets a host route so queries traverse the interface
	MTU       int
}

// DefaultTUNConfig returns the interface layout the filter expects.
func DefaultTUNConfig() TUNConfig {
	return TUNConfig{
		Name:      "focuslock0",
		Address:   "10.0.0.2/24",
		Routes:    []string{"0.0.0.0/0"},
		DNSServer: "1.1.1.1",
		MTU:       1500,
	}
}

// Validate checks addresses and routes before any system call is made.
func (c TUNConfig) Validate() error {
	if c.Name == "" {
		return apperrors.New(apperrors.KindValidation, "interface name is required")
	}
	if _, err := netip.ParsePrefix(c.Address); err != nil {
		return apperrors.Attr(apperrors.Wrap(err, apperrors.KindValidation, "invalid interface address"), "address", c.Address)
	}
	for _, r := range c.Routes {
		if _, err := netip.ParsePrefix(r); err != nil {
			return apperrors.Attr(apperrors.Wrap(err, apperrors.KindValidation, "invalid route"), "route", r)
		}
	}
	if c.DNSServer != "" {
		if _, err := netip.ParseAddr(c.DNSServer); err != nil {
			return apperrors.Attr(apperrors.Wrap(err, apperrors.KindValidation, "invalid dns server"), "dns_server", c.DNSServer)
		}
	}
	if c.MTU < 576 || c.MTU > 65535 {
		return apperrors.Errorf(apperrors.KindValidation, "mtu %d out of range", c.MTU)
	}
	return nil
}

// routeCIDRs returns the routes to install plus the DNS host route. An IPv4
// default route becomes the two /1 halves, which win over the host's own
// default by prefix length and leave it in place.
func (c TUNConfig) routeCIDRs() []string {
	out := make([]string, 0, len(c.Routes)+2)
	for _, r := range c.Routes {
		if p, err := netip.ParsePrefix(r); err == nil && p.Bits() == 0 && p.Addr().Is4() {
			out = append(out, "0.0.0.0/1", "128.0.0.0/1")
			continue
		}
		out = append(out, r)
	}
	if c.DNSServer != "" {
		out = append(out, c.DNSServer+"/32")
	}
	return out
}
