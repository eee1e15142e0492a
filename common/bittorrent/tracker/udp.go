package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"net"
	"sync"
	"time"

	"peerlinker/common/bittorrent"
	"peerlinker/common/util"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

// A connection id may be used for one minute after it was received.
const connectionIDTTL = time.Minute

// Largest announce response we read is 20 + 6*n; 2048 covers numwant 50
// with plenty to spare.
const udpBufferSize = 2048

var _ Tracker = (*UDPTracker)(nil)

type UDPTracker struct {
	addr    string
	timeout time.Duration

	mu           sync.Mutex
	conn         *net.UDPConn
	connectionID uint64
	connectedAt  time.Time
	// dead is closed when the receive loop of conn stops.
	dead chan struct{}

	pending *util.LRWCache[uint32, chan []byte]
}

func NewUDPTracker(addr string, opts Options) *UDPTracker {
	return &UDPTracker{
		addr:    addr,
		timeout: opts.timeout(),
		pending: util.NewLRWCache[uint32, chan []byte](opts.timeout(), 64),
	}
}

func (t *UDPTracker) Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.start()
	if err != nil {
		return nil, errors.Annotatef(ErrTrackerUnreachable, "%s: %v", t.addr, err)
	}
	if t.connectionID == 0 || time.Since(t.connectedAt) > connectionIDTTL {
		err = t.connect(ctx)
		if err != nil {
			return nil, err
		}
	}

	pkt := AnnouncePacket{
		TrackerRequestHeader: TrackerRequestHeader{
			ConnectionID:  t.connectionID,
			Action:        ActionAnnounce,
			TransactionID: rand.Uint32(),
		},
		InfoHash:   req.Metadata.InfoHash,
		PeerID:     req.PeerID,
		Downloaded: uint64(req.Downloaded),
		Left:       uint64(req.Left()),
		Uploaded:   uint64(req.Uploaded),
		Event:      udpEvent(req.event()),
		Key:        rand.Uint32(),
		NumWant:    int32(req.numWant()),
		Port:       req.port(),
	}
	resp, err := t.roundTrip(ctx, pkt.TransactionID, pkt)
	if err != nil {
		return nil, err
	}
	body, err := checkResponse(resp, ActionAnnounce)
	if err != nil {
		return nil, err
	}
	if len(body) < AnnounceResponseSize {
		return nil, errors.Annotatef(bittorrent.ErrInvalidInput, "announce response of %d bytes", len(resp))
	}
	ar := AnnounceResponse{}
	reader := bytes.NewReader(body)
	err = binary.Read(reader, binary.BigEndian, &ar)
	if err != nil {
		return nil, errors.Trace(err)
	}
	peers, err := bittorrent.DecodeCompactPeers(body[AnnounceResponseSize:])
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &AnnounceResult{
		Peers:    peers,
		Files:    req.InScope(),
		Seeders:  int64(ar.Seeders),
		Leechers: int64(ar.Leechers),
		Interval: time.Duration(ar.Interval) * time.Second,
	}, nil
}

func (t *UDPTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnect(t.conn)
	t.pending.Clear()
}

func (t *UDPTracker) start() error {
	if t.conn != nil {
		select {
		case <-t.dead:
			t.disconnect(t.conn)
		default:
			return nil
		}
	}
	addr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return errors.Trace(err)
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return errors.Trace(err)
	}
	t.conn = c
	t.connectionID = 0
	t.dead = make(chan struct{})
	go t.receive(c, t.dead)
	return nil
}

// disconnect must be called with t.mu held.
func (t *UDPTracker) disconnect(conn *net.UDPConn) {
	if conn != nil && t.conn == conn {
		_ = t.conn.Close()
		t.conn = nil
		t.connectionID = 0
	}
}

func (t *UDPTracker) connect(ctx context.Context) error {
	req := ConnectRequest{
		ProtocolID:    ProtocolID,
		Action:        ActionConnect,
		TransactionID: rand.Uint32(),
	}
	resp, err := t.roundTrip(ctx, req.TransactionID, req)
	if err != nil {
		return err
	}
	body, err := checkResponse(resp, ActionConnect)
	if err != nil {
		return err
	}
	if len(body) < ConnectResponseSize {
		return errors.Annotatef(bittorrent.ErrInvalidInput, "connect response of %d bytes", len(resp))
	}
	cr := ConnectResponse{}
	err = binary.Read(bytes.NewReader(body), binary.BigEndian, &cr)
	if err != nil {
		return errors.Annotatef(bittorrent.ErrInvalidInput, "connect response: %v", err)
	}
	t.connectionID = cr.ConnectionID
	t.connectedAt = time.Now()
	logx.Debugf("Connected to %s: %d", t.addr, cr.ConnectionID)
	return nil
}

func (t *UDPTracker) roundTrip(ctx context.Context, transactionID uint32, pkt any) ([]byte, error) {
	writer := &bytes.Buffer{}
	err := binary.Write(writer, binary.BigEndian, pkt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	dead := t.dead
	ch := make(chan []byte, 1)
	t.pending.Set(transactionID, ch)
	defer t.pending.Delete(transactionID)
	_, err = t.conn.Write(writer.Bytes())
	if err != nil {
		return nil, errors.Annotatef(ErrTrackerUnreachable, "%s: %v", t.addr, err)
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-dead:
		return nil, errors.Annotatef(ErrTrackerUnreachable, "%s: connection lost", t.addr)
	case <-ctx.Done():
		return nil, errors.Annotatef(ErrTrackerUnreachable, "%s: %v", t.addr, ctx.Err())
	}
}

// receive dispatches responses of conn to pending transactions. It closes
// dead before taking t.mu, so a waiting roundTrip fails without waiting
// for its timeout.
func (t *UDPTracker) receive(conn *net.UDPConn, dead chan struct{}) {
	hdr := TrackerResponseHeader{}
	buf := make([]byte, udpBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logx.Errorf("failed to read from %s: %+v", t.addr, err)
			}
			close(dead)
			t.mu.Lock()
			t.disconnect(conn)
			t.mu.Unlock()
			return
		}
		err = binary.Read(bytes.NewReader(buf[:n]), binary.BigEndian, &hdr)
		if err != nil {
			logx.Debugf("dropping short packet from %s", t.addr)
			continue
		}
		ch, ok := t.pending.GetAndRemove(hdr.TransactionID)
		if !ok {
			logx.Infof("transaction %d lost", hdr.TransactionID)
			continue
		}
		resp := make([]byte, n)
		copy(resp, buf[:n])
		ch <- resp
	}
}

// checkResponse verifies the action of resp and returns the payload that
// follows the header.
func checkResponse(resp []byte, action uint32) ([]byte, error) {
	hdr := TrackerResponseHeader{}
	err := binary.Read(bytes.NewReader(resp), binary.BigEndian, &hdr)
	if err != nil {
		return nil, errors.Annotatef(bittorrent.ErrInvalidInput, "response header: %v", err)
	}
	body := resp[TrackerResponseHeaderSize:]
	switch hdr.Action {
	case action:
		return body, nil
	case ActionError:
		return nil, errors.Annotate(ErrTrackerRejected, string(body))
	default:
		return nil, errors.Annotatef(bittorrent.ErrInvalidInput, "unexpected action %d", hdr.Action)
	}
}
