package packet

import (
	"strings"

	"golang.org/x/crypto/cryptobyte"
)

const (
	dnsHeaderLen         = 12
	maxDomainLen         = 255
	recordTypeHandshake  = 22
	handshakeClientHello = 1
	extServerName        = 0
	nameTypeHost         = 0
)

// DNSQueryName returns the first question name of a DNS query sent to port 53.
// Compression pointers in a query are rejected.
func DNSQueryName(buf []byte, info Info) (string, bool) {
	if info.Protocol != ProtoUDP || info.DstPort != PortDNS {
		return "", false
	}
	payload, ok := Payload(buf, info)
	if !ok {
		return "", false
	}

	s := cryptobyte.String(payload)
	if !s.Skip(dnsHeaderLen) {
		return "", false
	}

	var labels []string
	size := 0
	for {
		var n uint8
		if !s.ReadUint8(&n) {
			return "", false
		}
		if n == 0 {
			break
		}
		if n&0xc0 != 0 {
			return "", false
		}
		var label []byte
		if !s.ReadBytes(&label, int(n)) {
			return "", false
		}
		size += int(n) + 1
		if size > maxDomainLen {
			return "", false
		}
		labels = append(labels, string(label))
	}
	if len(labels) == 0 {
		return "", false
	}
	return strings.Join(labels, "."), true
}

// ServerName returns the SNI host_name of a TLS ClientHello sent to port 443.
// A ClientHello larger than one segment is read as far as this packet goes,
// so the name is found as long as its extension arrived.
func ServerName(buf []byte, info Info) (string, bool) {
	if info.Protocol != ProtoTCP || info.DstPort != PortHTTPS {
		return "", false
	}
	payload, ok := Payload(buf, info)
	if !ok {
		return "", false
	}

	s := cryptobyte.String(payload)
	var contentType uint8
	var record cryptobyte.String
	if !s.ReadUint8(&contentType) || contentType != recordTypeHandshake ||
		!s.Skip(2) || // legacy record version
		!readClamped(&s, 2, &record) {
		return "", false
	}

	var hsType uint8
	var hello cryptobyte.String
	if !record.ReadUint8(&hsType) || hsType != handshakeClientHello ||
		!readClamped(&record, 3, &hello) {
		return "", false
	}

	var sessionID, suites, compression cryptobyte.String
	if !hello.Skip(2) || // client version
		!hello.Skip(32) || // random
		!hello.ReadUint8LengthPrefixed(&sessionID) ||
		!hello.ReadUint16LengthPrefixed(&suites) ||
		!hello.ReadUint8LengthPrefixed(&compression) {
		return "", false
	}

	var exts cryptobyte.String
	if !readClamped(&hello, 2, &exts) {
		return "", false
	}
	for !exts.Empty() {
		var extType uint16
		var data cryptobyte.String
		if !exts.ReadUint16(&extType) || !readClamped(&exts, 2, &data) {
			return "", false
		}
		if extType != extServerName {
			continue
		}
		return hostName(data)
	}
	return "", false
}

// readClamped reads a big-endian length of size bytes and then at most that
// many bytes, fewer when the segment ends first.
func readClamped(s *cryptobyte.String, size int, out *cryptobyte.String) bool {
	var n uint32
	switch size {
	case 2:
		var v uint16
		if !s.ReadUint16(&v) {
			return false
		}
		n = uint32(v)
	case 3:
		if !s.ReadUint24(&n) {
			return false
		}
	default:
		return false
	}
	if int(n) > len(*s) {
		n = uint32(len(*s))
	}
	return s.ReadBytes((*[]byte)(out), int(n))
}

func hostName(data cryptobyte.String) (string, bool) {
	var list cryptobyte.String
	if !data.ReadUint16LengthPrefixed(&list) {
		return "", false
	}
	for !list.Empty() {
		var nameType uint8
		var name cryptobyte.String
		if !list.ReadUint8(&nameType) || !list.ReadUint16LengthPrefixed(&name) {
			return "", false
		}
		if nameType == nameTypeHost && len(name) > 0 {
			return string(name), true
		}
	}
	return "", false
}
