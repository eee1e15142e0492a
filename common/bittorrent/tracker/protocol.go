package tracker

import "encoding/binary"

// UDP tracker protocol, BEP 15.

const (
	ProtocolID uint64 = 0x41727101980
)

const (
	ActionConnect  = 0x00
	ActionAnnounce = 0x01
	ActionError    = 0x03
)

const (
	EventNone      = 0x00
	EventCompleted = 0x01
	EventStart     = 0x02
	EventStopped   = 0x03
)

var (
	TrackerResponseHeaderSize = binary.Size(TrackerResponseHeader{})
	ConnectResponseSize       = binary.Size(ConnectResponse{})
	AnnounceRequestSize       = binary.Size(AnnouncePacket{})
	AnnounceResponseSize      = binary.Size(AnnounceResponse{})
)

type ConnectRequest struct {
	ProtocolID    uint64
	Action        uint32
	TransactionID uint32
}

type ConnectResponse struct {
	ConnectionID uint64
}

type TrackerRequestHeader struct {
	ConnectionID  uint64
	Action        uint32
	TransactionID uint32
}

type TrackerResponseHeader struct {
	Action        uint32
	TransactionID uint32
}

type AnnouncePacket struct {
	TrackerRequestHeader
	InfoHash   [20]byte
	PeerID     [20]byte
	Downloaded uint64
	Left       uint64
	Uploaded   uint64
	Event      uint32
	IP         uint32
	Key        uint32
	NumWant    int32
	Port       uint16
}

// AnnounceResponse follows the response header and is itself followed by
// compact peers.
type AnnounceResponse struct {
	Interval uint32
	Leechers uint32
	Seeders  uint32
}

func udpEvent(event string) uint32 {
	switch event {
	case "completed":
		return EventCompleted
	case "stopped":
		return EventStopped
	case EventStarted:
		return EventStart
	}
	return EventNone
}
