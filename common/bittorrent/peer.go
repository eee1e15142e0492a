package bittorrent

import (
	"encoding/binary"
	"net/netip"

	"peerlinker/common/bencode"

	"github.com/pkg/errors"
)

const CompactPeerSize = 6

// Endpoint is an IPv4 peer address.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

func NewEndpoint(addr netip.AddrPort) (Endpoint, error) {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return Endpoint{}, errors.Wrapf(ErrInvalidInput, "%s is not an IPv4 address", addr)
	}
	return Endpoint{IP: ip.As4(), Port: addr.Port()}, nil
}

func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(e.IP), e.Port)
}

func (e Endpoint) String() string {
	return e.AddrPort().String()
}

func (e Endpoint) Compact() []byte {
	b := make([]byte, CompactPeerSize)
	copy(b, e.IP[:])
	binary.BigEndian.PutUint16(b[4:], e.Port)
	return b
}

// DecodeCompactPeers decodes a packed list of 6-byte peer records.
func DecodeCompactPeers(b []byte) ([]Endpoint, error) {
	if len(b)%CompactPeerSize != 0 {
		return nil, errors.Wrapf(bencode.ErrMalformedEncoding, "compact peer list of %d bytes", len(b))
	}
	peers := make([]Endpoint, 0, len(b)/CompactPeerSize)
	for i := 0; i < len(b); i += CompactPeerSize {
		e := Endpoint{Port: binary.BigEndian.Uint16(b[i+4 : i+6])}
		copy(e.IP[:], b[i:i+4])
		peers = append(peers, e)
	}
	return peers, nil
}

func EncodeCompactPeers(peers []Endpoint) []byte {
	b := make([]byte, 0, len(peers)*CompactPeerSize)
	for _, p := range peers {
		b = append(b, p.Compact()...)
	}
	return b
}
