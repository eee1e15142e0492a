package tracker

import (
	"context"
	"net/url"
	"strings"
	"time"

	"peerlinker/common/bittorrent"

	"github.com/juju/errors"
)

const (
	DefaultPort    = 6881
	DefaultNumWant = 50
	DefaultTimeout = 15 * time.Second
	EventStarted   = "started"
)

var (
	ErrTrackerUnreachable = errors.New("tracker unreachable")
	ErrTrackerRejected    = errors.New("tracker rejected announce")
)

type AnnounceRequest struct {
	Metadata *bittorrent.Metadata
	PeerID   bittorrent.PeerID
	// Files selects the files we want. Empty means every file.
	Files      []*bittorrent.File
	Downloaded int64
	Uploaded   int64
	Port       uint16
	NumWant    int
	Event      string
}

// InScope returns the selected files, or all files of the torrent.
func (r *AnnounceRequest) InScope() []*bittorrent.File {
	if len(r.Files) > 0 {
		return r.Files
	}
	return r.Metadata.Files
}

// Left is the total size of the files in scope.
func (r *AnnounceRequest) Left() int64 {
	if len(r.Files) == 0 {
		return r.Metadata.TotalLength()
	}
	var left int64
	for _, f := range r.Files {
		left += f.Length
	}
	return left
}

func (r *AnnounceRequest) port() uint16 {
	if r.Port == 0 {
		return DefaultPort
	}
	return r.Port
}

func (r *AnnounceRequest) numWant() int {
	if r.NumWant == 0 {
		return DefaultNumWant
	}
	return r.NumWant
}

func (r *AnnounceRequest) event() string {
	if r.Event == "" {
		return EventStarted
	}
	return r.Event
}

type AnnounceResult struct {
	Peers          []bittorrent.Endpoint
	Files          []*bittorrent.File
	Seeders        int64
	Leechers       int64
	Interval       time.Duration
	WarningMessage string
}

type Tracker interface {
	Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResult, error)
	Stop()
}

type Options struct {
	Timeout   time.Duration
	UserAgent string
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// New picks the tracker implementation for the scheme of announceURL.
func New(announceURL string, opts Options) (Tracker, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, errors.Annotatef(err, "announce url %q", announceURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPTracker(announceURL, opts), nil
	case "udp":
		return NewUDPTracker(u.Host, opts), nil
	default:
		return nil, errors.NotSupportedf("tracker scheme %q", u.Scheme)
	}
}
