package bittorrent

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultIOTimeout      = 20 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateAccepted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

type FailureReason int

const (
	ReasonNone FailureReason = iota
	ConnectionRefused
	ConnectTimeout
	IoTimeout
	PrematureClose
	TransportError
	// HandshakeMismatch is only reported when strict validation is on.
	HandshakeMismatch
	Cancelled
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ConnectionRefused:
		return "connection_refused"
	case ConnectTimeout:
		return "connect_timeout"
	case IoTimeout:
		return "io_timeout"
	case PrematureClose:
		return "premature_close"
	case TransportError:
		return "transport_error"
	case HandshakeMismatch:
		return "handshake_mismatch"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

type HandshakeError struct {
	Endpoint Endpoint
	Reason   FailureReason
	Err      error
}

func (e *HandshakeError) Error() string {
	return e.Endpoint.String() + ": " + e.Reason.String() + ": " + e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from a handshake error.
func ReasonOf(err error) FailureReason {
	if err == nil {
		return ReasonNone
	}
	var he *HandshakeError
	if errors.As(err, &he) {
		return he.Reason
	}
	return TransportError
}

type TrafficMetricFunc func(label string, length int)

// PeerConn drives one outbound handshake:
// idle -> connecting -> handshaking -> accepted | rejected.
// The connection is owned by the PeerConn and closed by Stop.
type PeerConn struct {
	Endpoint       Endpoint
	Dialer         proxy.Dialer
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	// Strict rejects responses whose protocol string or info hash differ
	// from ours. Without it any 68 bytes received in time are accepted.
	Strict bool

	handshake         *Handshake
	conn              net.Conn
	state             State
	mu                sync.Mutex
	trafficMetricFunc TrafficMetricFunc
}

func NewPeerConn(endpoint Endpoint, handshake *Handshake) *PeerConn {
	return &PeerConn{
		Endpoint:       endpoint,
		ConnectTimeout: DefaultConnectTimeout,
		IOTimeout:      DefaultIOTimeout,
		handshake:      handshake,
	}
}

func (pc *PeerConn) SetTrafficMetricFunc(f TrafficMetricFunc) {
	pc.trafficMetricFunc = f
}

func (pc *PeerConn) trafficMetric(label string, length int) {
	if pc.trafficMetricFunc != nil {
		pc.trafficMetricFunc(label, length)
	}
}

func (pc *PeerConn) State() State {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

func (pc *PeerConn) setState(s State) {
	pc.mu.Lock()
	pc.state = s
	pc.mu.Unlock()
}

func (pc *PeerConn) reject(reason FailureReason, err error) error {
	pc.setState(StateRejected)
	return &HandshakeError{Endpoint: pc.Endpoint, Reason: reason, Err: errors.WithStack(err)}
}

// Start opens the connection within ConnectTimeout.
func (pc *PeerConn) Start(ctx context.Context) error {
	pc.setState(StateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, pc.ConnectTimeout)
	defer cancel()
	conn, err := dialContext(dialCtx, pc.dialer(), "tcp", pc.Endpoint.String())
	if err != nil {
		if ctx.Err() == context.Canceled {
			return pc.reject(Cancelled, err)
		}
		if dialCtx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return pc.reject(ConnectTimeout, err)
		}
		return pc.reject(ConnectionRefused, err)
	}
	pc.mu.Lock()
	pc.conn = conn
	pc.state = StateHandshaking
	pc.mu.Unlock()
	return nil
}

// Stop closes the connection. It is safe to call in any state.
func (pc *PeerConn) Stop() error {
	pc.mu.Lock()
	conn := pc.conn
	pc.conn = nil
	pc.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.WithStack(err)
	}
	return nil
}

// Handshake writes our packet and reads exactly HandshakeLength bytes back,
// all within IOTimeout. When the timeout fires the connection is closed out
// from under any pending read or write, so a peer that ignores deadlines
// cannot stall the caller.
func (pc *PeerConn) Handshake(ctx context.Context) (*Handshake, error) {
	pc.mu.Lock()
	conn := pc.conn
	pc.mu.Unlock()
	if conn == nil {
		return nil, pc.reject(TransportError, errors.New("not connected"))
	}

	ioCtx, cancel := context.WithTimeout(ctx, pc.IOTimeout)
	defer cancel()
	_ = conn.SetDeadline(time.Now().Add(pc.IOTimeout))

	done := make(chan struct{})
	forced := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-ioCtx.Done():
			close(forced)
			logrus.Debugf("%s is taking too long, forcing close", pc.Endpoint)
			_ = conn.Close()
		}
	}()
	resp, err := pc.exchange(conn)
	close(done)

	if err != nil {
		select {
		case <-forced:
			if ctx.Err() == context.Canceled {
				return nil, pc.reject(Cancelled, ctx.Err())
			}
			return nil, pc.reject(IoTimeout, err)
		default:
		}
		switch {
		case isTimeout(err):
			return nil, pc.reject(IoTimeout, err)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			logrus.Debugf("%s closed the connection early, probably does not have this torrent", pc.Endpoint)
			return nil, pc.reject(PrematureClose, err)
		default:
			return nil, pc.reject(TransportError, err)
		}
	}

	h, err := Deserialize(resp)
	if err != nil {
		return nil, pc.reject(TransportError, err)
	}
	if pc.Strict {
		err = h.Validate(pc.handshake.InfoHash)
		if err != nil {
			return nil, pc.reject(HandshakeMismatch, err)
		}
	}
	pc.setState(StateAccepted)
	return h, nil
}

func (pc *PeerConn) exchange(conn net.Conn) ([]byte, error) {
	pkt := pc.handshake.Bytes()
	_, err := conn.Write(pkt)
	if err != nil {
		return nil, err
	}
	pc.trafficMetric("out_bt_handshake", len(pkt))
	resp := make([]byte, HandshakeLength)
	n, err := io.ReadFull(conn, resp)
	pc.trafficMetric("in_bt_handshake", n)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (pc *PeerConn) dialer() proxy.Dialer {
	if pc.Dialer != nil {
		return pc.Dialer
	}
	return &net.Dialer{}
}

func dialContext(ctx context.Context, d proxy.Dialer, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := d.Dial(network, addr)
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
