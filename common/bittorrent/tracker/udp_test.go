package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConnectionID uint64 = 0xC0FFEE

// fakeUDPTracker answers one connect and one announce. The announce it
// received is sent on announced.
func fakeUDPTracker(t *testing.T, reject bool) (string, <-chan AnnouncePacket) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	announced := make(chan AnnouncePacket, 1)

	go func() {
		buf := make([]byte, udpBufferSize)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			reply := &bytes.Buffer{}
			if n == binary.Size(ConnectRequest{}) {
				req := ConnectRequest{}
				_ = binary.Read(bytes.NewReader(buf[:n]), binary.BigEndian, &req)
				if req.ProtocolID != ProtocolID {
					continue
				}
				_ = binary.Write(reply, binary.BigEndian, TrackerResponseHeader{Action: ActionConnect, TransactionID: req.TransactionID})
				_ = binary.Write(reply, binary.BigEndian, ConnectResponse{ConnectionID: testConnectionID})
			} else {
				pkt := AnnouncePacket{}
				_ = binary.Read(bytes.NewReader(buf[:n]), binary.BigEndian, &pkt)
				announced <- pkt
				if reject {
					_ = binary.Write(reply, binary.BigEndian, TrackerResponseHeader{Action: ActionError, TransactionID: pkt.TransactionID})
					reply.WriteString("torrent not registered")
				} else {
					_ = binary.Write(reply, binary.BigEndian, TrackerResponseHeader{Action: ActionAnnounce, TransactionID: pkt.TransactionID})
					_ = binary.Write(reply, binary.BigEndian, AnnounceResponse{Interval: 900, Leechers: 2, Seeders: 5})
					reply.Write([]byte{127, 0, 0, 1, 0x1A, 0xE1})
				}
			}
			_, _ = conn.WriteToUDP(reply.Bytes(), from)
		}
	}()
	return conn.LocalAddr().String(), announced
}

func TestUDPTracker_Announce(t *testing.T) {
	addr, announced := fakeUDPTracker(t, false)
	tr, err := New("udp://"+addr+"/announce", Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	defer tr.Stop()

	req := &AnnounceRequest{Metadata: testMetadata(""), PeerID: testPeerID()}
	result, err := tr.Announce(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Peers, 1)
	assert.Equal(t, "127.0.0.1:6881", result.Peers[0].String())
	assert.Equal(t, int64(5), result.Seeders)
	assert.Equal(t, int64(2), result.Leechers)
	assert.Equal(t, 15*time.Minute, result.Interval)

	pkt := <-announced
	assert.Equal(t, testConnectionID, pkt.ConnectionID)
	assert.Equal(t, uint32(ActionAnnounce), pkt.Action)
	assert.Equal(t, [20]byte(req.Metadata.InfoHash), pkt.InfoHash)
	assert.Equal(t, [20]byte(req.PeerID), pkt.PeerID)
	assert.Equal(t, uint64(1234), pkt.Left)
	assert.Equal(t, uint32(EventStart), pkt.Event)
	assert.Equal(t, int32(DefaultNumWant), pkt.NumWant)
	assert.Equal(t, uint16(DefaultPort), pkt.Port)
}

func TestUDPTracker_Rejected(t *testing.T) {
	addr, _ := fakeUDPTracker(t, true)
	tr := NewUDPTracker(addr, Options{Timeout: 2 * time.Second})
	defer tr.Stop()

	_, err := tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(""), PeerID: testPeerID()})
	assert.ErrorIs(t, err, ErrTrackerRejected)
}

func TestUDPTracker_Unreachable(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	// A listener that never answers.
	tr := NewUDPTracker(conn.LocalAddr().String(), Options{Timeout: 200 * time.Millisecond})
	defer tr.Stop()
	_, err = tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(""), PeerID: testPeerID()})
	assert.ErrorIs(t, err, ErrTrackerUnreachable)
}

func TestUDPTracker_Refused(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	tr := NewUDPTracker(addr, Options{Timeout: 10 * time.Second})
	defer tr.Stop()
	begin := time.Now()
	_, err = tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(""), PeerID: testPeerID()})
	assert.ErrorIs(t, err, ErrTrackerUnreachable)
	assert.Less(t, time.Since(begin), 5*time.Second)
}

func TestAnnouncePacketSize(t *testing.T) {
	assert.Equal(t, 98, AnnounceRequestSize)
	assert.Equal(t, 8, TrackerResponseHeaderSize)
	assert.Equal(t, 12, AnnounceResponseSize)
	assert.Equal(t, 8, ConnectResponseSize)
}
