//go:build linux

package infra

import (
	"errors"
	"net"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/filter"
)

// tunOffset leaves headroom for the virtio header the kernel device may use.
const (
	tunOffset      = 16
	tunSegmentSize = 65535
)

// TUNDevice adapts a wireguard tun.Device to the one-packet-per-call
// filter.Device interface.
type TUNDevice struct {
	dev    tun.Device
	name   string
	logger *zap.Logger

	bufs    [][]byte
	sizes   []int
	pending [][]byte

	wmu  sync.Mutex
	wbuf []byte
}

// OpenTUN creates and configures the interface. Any failure is reported
// as domain.ErrInterfaceUnavailable with the cause attached.
func OpenTUN(cfg TUNConfig, logger *zap.Logger) (*TUNDevice, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dev, err := tun.CreateTUN(cfg.Name, cfg.MTU)
	if err != nil {
		return nil, unavailable(err, "create tun device")
	}
	name, err := dev.Name()
	if err != nil {
		dev.Close()
		return nil, unavailable(err, "get tun device name")
	}

	if err := configureLink(name, cfg); err != nil {
		dev.Close()
		return nil, err
	}

	batch := dev.BatchSize()
	t := &TUNDevice{
		dev:    dev,
		name:   name,
		logger: logger,
		bufs:   make([][]byte, batch),
		sizes:  make([]int, batch),
		wbuf:   make([]byte, tunOffset+tunSegmentSize),
	}
	for i := range t.bufs {
		t.bufs[i] = make([]byte, tunOffset+tunSegmentSize)
	}
	logger.Info("Virtual interface up",
		zap.String("name", name),
		zap.String("address", cfg.Address),
		zap.Strings("routes", cfg.routeCIDRs()),
		zap.Int("mtu", cfg.MTU),
	)
	return t, nil
}

func configureLink(name string, cfg TUNConfig) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return unavailable(err, "get link")
	}
	if err := netlink.LinkSetMTU(link, cfg.MTU); err != nil {
		return unavailable(err, "set mtu")
	}
	addr, err := netlink.ParseAddr(cfg.Address)
	if err != nil {
		return unavailable(err, "parse address")
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return unavailable(err, "add address")
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return unavailable(err, "bring interface up")
	}
	for _, cidr := range cfg.routeCIDRs() {
		_, dst, err := net.ParseCIDR(cidr)
		if err != nil {
			return unavailable(err, "parse route")
		}
		route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: dst}
		if err := netlink.RouteAdd(route); err != nil && !errors.Is(err, syscall.EEXIST) {
			return apperrors.Attr(unavailable(err, "add route"), "route", cidr)
		}
	}
	return nil
}

func unavailable(err error, op string) error {
	return apperrors.Attr(apperrors.Wrap(err, apperrors.KindUnavailable, op), "cause", domain.ErrInterfaceUnavailable.Error())
}

// Name returns the kernel interface name.
func (t *TUNDevice) Name() string {
	return t.name
}

// Read returns the next packet, draining a batch before reading again.
func (t *TUNDevice) Read(buf []byte) (int, error) {
	for len(t.pending) == 0 {
		n, err := t.dev.Read(t.bufs, t.sizes, tunOffset)
		for i := 0; i < n; i++ {
			t.pending = append(t.pending, t.bufs[i][tunOffset:tunOffset+t.sizes[i]])
		}
		if err != nil && len(t.pending) == 0 {
			return 0, err
		}
	}
	pkt := t.pending[0]
	t.pending = t.pending[1:]
	return copy(buf, pkt), nil
}

// Write injects one packet.
func (t *TUNDevice) Write(pkt []byte) (int, error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	n := copy(t.wbuf[tunOffset:], pkt)
	if _, err := t.dev.Write([][]byte{t.wbuf[:tunOffset+n]}, tunOffset); err != nil {
		return 0, err
	}
	return n, nil
}

// Close removes the interface; its routes go with it.
func (t *TUNDevice) Close() error {
	return t.dev.Close()
}

// TUNFactory returns a filter.DeviceFactory that opens cfg on demand.
func TUNFactory(cfg TUNConfig, logger *zap.Logger) filter.DeviceFactory {
	return func() (filter.Device, error) {
		return OpenTUN(cfg, logger)
	}
}

var _ filter.Device = (*TUNDevice)(nil)
