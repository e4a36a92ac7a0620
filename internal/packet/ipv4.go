// Package packet extracts the destination host name from raw IPv4 packets.
// It understands exactly two cases: a DNS query over UDP to port 53 and a
// TLS ClientHello over TCP to port 443. Everything else is reported as
// not inspectable so the caller can forward it untouched.
package packet

import (
	"net/netip"

	"golang.org/x/crypto/cryptobyte"

	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// IP protocol numbers.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// Well-known destination ports.
const (
	PortDNS   uint16 = 53
	PortHTTPS uint16 = 443
)

const minIPv4Header = 20

var (
	ErrMalformed = apperrors.New(apperrors.KindMalformed, "malformed packet")
	ErrNotIPv4   = apperrors.New(apperrors.KindMalformed, "not an ipv4 packet")
)

// Info is the parsed IPv4 header plus transport ports.
type Info struct {
	HeaderLen int
	Protocol  uint8
	Src       netip.Addr
	Dst       netip.Addr
	SrcPort   uint16
	DstPort   uint16
}

// ParseIPv4 reads the IPv4 header and, for TCP and UDP, the port pair that follows it.
func ParseIPv4(buf []byte) (Info, error) {
	if len(buf) < minIPv4Header {
		return Info{}, ErrMalformed
	}
	if buf[0]>>4 != 4 {
		return Info{}, ErrNotIPv4
	}

	info := Info{HeaderLen: int(buf[0]&0x0f) * 4}
	if info.HeaderLen < minIPv4Header || info.HeaderLen > len(buf) {
		return Info{}, ErrMalformed
	}

	s := cryptobyte.String(buf[9:minIPv4Header])
	var src, dst [4]byte
	if !s.ReadUint8(&info.Protocol) ||
		!s.Skip(2) || // header checksum
		!s.CopyBytes(src[:]) ||
		!s.CopyBytes(dst[:]) {
		return Info{}, ErrMalformed
	}
	info.Src = netip.AddrFrom4(src)
	info.Dst = netip.AddrFrom4(dst)

	if info.Protocol == ProtoTCP || info.Protocol == ProtoUDP {
		ports := cryptobyte.String(buf[info.HeaderLen:])
		if !ports.ReadUint16(&info.SrcPort) || !ports.ReadUint16(&info.DstPort) {
			return Info{}, ErrMalformed
		}
	}
	return info, nil
}

// Payload returns the bytes after the transport header, or false when
// the packet is neither TCP nor UDP or is too short.
func Payload(buf []byte, info Info) ([]byte, bool) {
	off := info.HeaderLen
	switch info.Protocol {
	case ProtoUDP:
		off += 8
	case ProtoTCP:
		if len(buf) < off+13 {
			return nil, false
		}
		dataOff := int(buf[off+12]>>4) * 4
		if dataOff < 20 {
			return nil, false
		}
		off += dataOff
	default:
		return nil, false
	}
	if off > len(buf) {
		return nil, false
	}
	return buf[off:], true
}
