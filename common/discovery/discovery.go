package discovery

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"peerlinker/common/bittorrent"
	"peerlinker/common/bittorrent/tracker"
	"peerlinker/common/executor"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/net/proxy"
)

const DefaultBatchSize = 20

type Options struct {
	Version        bittorrent.Version
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	BatchSize      int
	// Files limits the announce to a subset of the torrent's files.
	Files   []*bittorrent.File
	Port    uint16
	NumWant int
	// StrictHandshake rejects peers answering with another protocol string
	// or info hash.
	StrictHandshake bool
	Dialer          proxy.Dialer
	// Tracker replaces the tracker built from the announce url.
	Tracker        tracker.Tracker
	TrackerOptions tracker.Options
	Rand           *rand.Rand

	OnOutcome         func(o *Outcome)
	TrafficMetricFunc bittorrent.TrafficMetricFunc
}

// Outcome is the terminal state of one peer.
type Outcome struct {
	Endpoint  bittorrent.Endpoint
	Accepted  bool
	Reason    bittorrent.FailureReason
	Err       error
	Elapsed   time.Duration
	Handshake *bittorrent.Handshake
}

type Result struct {
	Announce   *tracker.AnnounceResult
	Candidates []bittorrent.Endpoint
	// Accepted is in the order the handshakes completed.
	Accepted []bittorrent.Endpoint
	Outcomes []*Outcome
	Batches  int
}

type Orchestrator struct {
	meta      *bittorrent.Metadata
	opts      Options
	peerID    bittorrent.PeerID
	tracker   tracker.Tracker
	handshake *bittorrent.Handshake
}

// New prepares a discovery session. The peer id is generated here and used
// for every announce and handshake of the session.
func New(meta *bittorrent.Metadata, opts Options) (*Orchestrator, error) {
	if meta == nil {
		return nil, errors.NotValidf("nil metadata")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = bittorrent.DefaultConnectTimeout
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = bittorrent.DefaultIOTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.TrackerOptions.UserAgent == "" {
		opts.TrackerOptions.UserAgent = "peerlinker/" + opts.Version.String()
	}
	peerID, err := bittorrent.GeneratePeerID(opts.Version, opts.Rand)
	if err != nil {
		return nil, errors.Trace(err)
	}
	tr := opts.Tracker
	if tr == nil {
		tr, err = tracker.New(meta.Announce, opts.TrackerOptions)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	return &Orchestrator{
		meta:      meta,
		opts:      opts,
		peerID:    peerID,
		tracker:   tr,
		handshake: bittorrent.NewHandshake(meta.InfoHash, peerID),
	}, nil
}

func (o *Orchestrator) PeerID() bittorrent.PeerID {
	return o.peerID
}

func (o *Orchestrator) Stop() {
	o.tracker.Stop()
}

// Discover announces to the tracker, then handshakes every returned peer in
// batches of BatchSize. A tracker failure is returned before any peer is
// contacted. Peer failures are recorded in the result and never fail the
// round. If ctx ends mid-round the partial result is returned with the
// context error.
func (o *Orchestrator) Discover(ctx context.Context) (*Result, error) {
	announce, err := o.tracker.Announce(ctx, &tracker.AnnounceRequest{
		Metadata: o.meta,
		PeerID:   o.peerID,
		Files:    o.opts.Files,
		Port:     o.opts.Port,
		NumWant:  o.opts.NumWant,
	})
	if err != nil {
		logx.Errorf("Announce of %s failed: %v", o.meta.InfoHash, err)
		return nil, errors.Trace(err)
	}

	result := &Result{
		Announce:   announce,
		Candidates: dedupe(announce.Peers),
		Accepted:   make([]bittorrent.Endpoint, 0),
		Outcomes:   make([]*Outcome, 0),
	}
	logx.Infof("Tracker returned %d peers for %s, %d seeders %d leechers",
		len(result.Candidates), o.meta.InfoHash, announce.Seeders, announce.Leechers)

	mu := sync.Mutex{}
	result.Batches = executor.RunBatches(ctx, result.Candidates, o.opts.BatchSize, func(ctx context.Context, e bittorrent.Endpoint) {
		outcome := o.handshakePeer(ctx, e)
		mu.Lock()
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Accepted {
			result.Accepted = append(result.Accepted, e)
		}
		mu.Unlock()
		if o.opts.OnOutcome != nil {
			o.opts.OnOutcome(outcome)
		}
	})

	logx.Infof("Discovery of %s: %d of %d peers accepted in %d batches",
		o.meta.InfoHash, len(result.Accepted), len(result.Candidates), result.Batches)
	if ctx.Err() != nil {
		return result, errors.Trace(ctx.Err())
	}
	return result, nil
}

// handshakePeer owns the connection to e and releases it before returning.
func (o *Orchestrator) handshakePeer(ctx context.Context, e bittorrent.Endpoint) *Outcome {
	start := time.Now()
	pc := bittorrent.NewPeerConn(e, o.handshake)
	pc.Dialer = o.opts.Dialer
	pc.ConnectTimeout = o.opts.ConnectTimeout
	pc.IOTimeout = o.opts.IOTimeout
	pc.Strict = o.opts.StrictHandshake
	pc.SetTrafficMetricFunc(o.opts.TrafficMetricFunc)

	outcome := &Outcome{Endpoint: e}
	err := pc.Start(ctx)
	if err == nil {
		outcome.Handshake, err = pc.Handshake(ctx)
	}
	stopErr := pc.Stop()
	if stopErr != nil {
		logx.Debugf("Failed to close %s: %v", e, stopErr)
	}
	outcome.Elapsed = time.Since(start)
	if err != nil {
		outcome.Reason = bittorrent.ReasonOf(err)
		outcome.Err = err
		logx.Debugf("Peer %s rejected after %s: %v", e, outcome.Elapsed, err)
		return outcome
	}
	outcome.Accepted = true
	return outcome
}

func dedupe(peers []bittorrent.Endpoint) []bittorrent.Endpoint {
	seen := make(map[bittorrent.Endpoint]struct{}, len(peers))
	ret := make([]bittorrent.Endpoint, 0, len(peers))
	for _, p := range peers {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ret = append(ret, p)
	}
	return ret
}

// Discover runs a single round with a fresh session for meta.
func Discover(ctx context.Context, meta *bittorrent.Metadata, version bittorrent.Version, connectTimeout, ioTimeout time.Duration, batchSize int) (*Result, error) {
	o, err := New(meta, Options{
		Version:        version,
		ConnectTimeout: connectTimeout,
		IOTimeout:      ioTimeout,
		BatchSize:      batchSize,
	})
	if err != nil {
		return nil, err
	}
	defer o.Stop()
	return o.Discover(ctx)
}
