// Package fixtures provides test helpers for unit and integration tests.
package fixtures

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/miekg/dns"
	"golang.org/x/crypto/cryptobyte"
)

// Addresses used by generated packets. ClientIP matches the TUN address.
var (
	ClientIP = net.IP{10, 0, 0, 2}
	DNSIP    = net.IP{1, 1, 1, 1}
	WebIP    = net.IP{93, 184, 216, 34}
)

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

// UDPPacket builds an IPv4/UDP packet from ClientIP to dst:dstPort.
// Builders panic on serialization errors; they are only used from tests.
func UDPPacket(dst net.IP, dstPort uint16, payload []byte) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ClientIP,
		DstIP:    dst,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(40000),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ip, udp, gopacket.Payload(payload))
}

// TCPPacket builds an IPv4/TCP PSH+ACK segment from ClientIP to dst:dstPort.
func TCPPacket(dst net.IP, dstPort uint16, payload []byte) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    ClientIP,
		DstIP:    dst,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(51000),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1,
		Ack:     1,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ip, tcp, gopacket.Payload(payload))
}

// DNSQuery builds a UDP packet carrying an A query for name to DNSIP:53.
func DNSQuery(name string) []byte {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	wire, err := m.Pack()
	if err != nil {
		panic(err)
	}
	return UDPPacket(DNSIP, 53, wire)
}

// HTTPSHello builds a TCP packet carrying a ClientHello for serverName to WebIP:443.
func HTTPSHello(serverName string) []byte {
	return TCPPacket(WebIP, 443, ClientHello(serverName))
}

// ClientHello returns a minimal TLS 1.3 ClientHello record. An empty
// serverName omits the server_name extension.
func ClientHello(serverName string) []byte {
	return clientHello(serverName, 0)
}

// ClientHelloWithKeyShare adds a key_share extension of keyLen bytes after
// the server_name extension, the way post-quantum key shares push a
// ClientHello past one TCP segment.
func ClientHelloWithKeyShare(serverName string, keyLen int) []byte {
	return clientHello(serverName, keyLen)
}

func clientHello(serverName string, keyLen int) []byte {
	var b cryptobyte.Builder
	b.AddUint8(22)      // handshake record
	b.AddUint16(0x0301) // legacy record version
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(1) // client_hello
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16(0x0303)
			b.AddBytes(make([]byte, 32))
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(make([]byte, 32))
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(0x1301)
				b.AddUint16(0xc02f)
			})
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0)
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				// supported_versions ahead of SNI so the parser has to skip an extension
				b.AddUint16(43)
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddUint16(0x0304)
					})
				})
				if serverName != "" {
					b.AddUint16(0)
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
							b.AddUint8(0)
							b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
								b.AddBytes([]byte(serverName))
							})
						})
					})
				}
				if keyLen > 0 {
					b.AddUint16(51) // key_share
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
							b.AddUint16(0x11ec) // X25519MLKEM768
							b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
								b.AddBytes(make([]byte, keyLen))
							})
						})
					})
				}
			})
		})
	})
	return b.BytesOrPanic()
}

// CaptureClientHello returns the first TLS record written by crypto/tls when
// dialing serverName, i.e. a real-world ClientHello.
func CaptureClientHello(serverName string) ([]byte, error) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		defer client.Close()
		conn := tls.Client(client, &tls.Config{ServerName: serverName, InsecureSkipVerify: true})
		_ = conn.Handshake()
	}()

	if err := server.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return nil, err
	}
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(server, hdr); err != nil {
		return nil, err
	}
	body := make([]byte, int(hdr[3])<<8|int(hdr[4]))
	if _, err := io.ReadFull(server, body); err != nil {
		return nil, err
	}
	return append(hdr, body...), nil
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
