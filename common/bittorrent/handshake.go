package bittorrent

import (
	"bytes"

	"github.com/pkg/errors"
)

const (
	Protocol        = "BitTorrent protocol"
	HandshakeLength = 1 + len(Protocol) + 8 + HashSize + PeerIDSize
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrHandshakeMismatch = errors.New("handshake mismatch")
)

type Handshake struct {
	ProtocolLength byte
	Protocol       string
	Reserved       [8]byte
	InfoHash       InfoHash
	PeerID         PeerID
}

func NewHandshake(infoHash InfoHash, peerID PeerID) *Handshake {
	return &Handshake{
		ProtocolLength: byte(len(Protocol)),
		Protocol:       Protocol,
		InfoHash:       infoHash,
		PeerID:         peerID,
	}
}

func (h *Handshake) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HandshakeLength))
	buf.WriteByte(h.ProtocolLength)
	pstr := make([]byte, len(Protocol))
	copy(pstr, h.Protocol)
	buf.Write(pstr)
	buf.Write(h.Reserved[:])
	buf.Write(h.InfoHash[:])
	buf.Write(h.PeerID[:])
	return buf.Bytes()
}

// Validate checks a received handshake against the protocol string and the
// info hash we asked for.
func (h *Handshake) Validate(infoHash InfoHash) error {
	if int(h.ProtocolLength) != len(Protocol) || h.Protocol != Protocol {
		return errors.Wrapf(ErrHandshakeMismatch, "protocol %q", h.Protocol)
	}
	if h.InfoHash != infoHash {
		return errors.Wrapf(ErrHandshakeMismatch, "info hash %s", h.InfoHash)
	}
	return nil
}

// Serialize builds the 68-byte handshake packet.
func Serialize(infoHash, peerID []byte) ([]byte, error) {
	if len(infoHash) != HashSize {
		return nil, errors.Wrapf(ErrInvalidInput, "info hash is %d bytes, want %d", len(infoHash), HashSize)
	}
	if len(peerID) != PeerIDSize {
		return nil, errors.Wrapf(ErrInvalidInput, "peer id is %d bytes, want %d", len(peerID), PeerIDSize)
	}
	var ih InfoHash
	var id PeerID
	copy(ih[:], infoHash)
	copy(id[:], peerID)
	return NewHandshake(ih, id).Bytes(), nil
}

// Deserialize splits a 68-byte packet into its fields without judging them.
func Deserialize(buf []byte) (*Handshake, error) {
	if len(buf) != HandshakeLength {
		return nil, errors.Wrapf(ErrInvalidInput, "handshake is %d bytes, want %d", len(buf), HandshakeLength)
	}
	h := &Handshake{
		ProtocolLength: buf[0],
	}
	pos := 1
	h.Protocol = string(buf[pos : pos+len(Protocol)])
	pos += len(Protocol)
	pos += copy(h.Reserved[:], buf[pos:])
	pos += copy(h.InfoHash[:], buf[pos:])
	copy(h.PeerID[:], buf[pos:])
	return h, nil
}
