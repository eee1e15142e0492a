package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"peerlinker/common/bencode"
	"peerlinker/common/bittorrent"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

const maxResponseSize = 4 << 20

var _ Tracker = (*HTTPTracker)(nil)

type HTTPTracker struct {
	announceURL string
	userAgent   string
	client      *http.Client
}

type httpResponseExtras struct {
	FailureReason  string `mapstructure:"failure reason"`
	WarningMessage string `mapstructure:"warning message"`
	Interval       int64  `mapstructure:"interval"`
	MinInterval    int64  `mapstructure:"min interval"`
	TrackerID      string `mapstructure:"tracker id"`
}

func NewHTTPTracker(announceURL string, opts Options) *HTTPTracker {
	ua := opts.UserAgent
	if ua == "" {
		ua = "peerlinker/1.0"
	}
	return &HTTPTracker{
		announceURL: announceURL,
		userAgent:   ua,
		client:      &http.Client{Timeout: opts.timeout()},
	}
}

// EncodeInfoHash percent-encodes every byte, including bytes that would be
// legal in a URL as-is.
func EncodeInfoHash(h bittorrent.InfoHash) string {
	var sb strings.Builder
	sb.Grow(len(h) * 3)
	for _, b := range h {
		fmt.Fprintf(&sb, "%%%02X", b)
	}
	return sb.String()
}

// AnnounceURL builds the GET url. The query string is assembled by hand so
// the pre-encoded info hash is not escaped a second time.
func (t *HTTPTracker) AnnounceURL(req *AnnounceRequest) string {
	sep := "?"
	if strings.Contains(t.announceURL, "?") {
		sep = "&"
	}
	var sb strings.Builder
	sb.WriteString(t.announceURL)
	sb.WriteString(sep)
	sb.WriteString("info_hash=" + EncodeInfoHash(req.Metadata.InfoHash))
	sb.WriteString("&peer_id=" + req.PeerID.String())
	sb.WriteString("&port=" + strconv.Itoa(int(req.port())))
	sb.WriteString("&downloaded=" + strconv.FormatInt(req.Downloaded, 10))
	sb.WriteString("&uploaded=" + strconv.FormatInt(req.Uploaded, 10))
	sb.WriteString("&left=" + strconv.FormatInt(req.Left(), 10))
	sb.WriteString("&numwant=" + strconv.Itoa(req.numWant()))
	sb.WriteString("&event=" + req.event())
	sb.WriteString("&compact=1")
	return sb.String()
}

func (t *HTTPTracker) Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResult, error) {
	u := t.AnnounceURL(req)
	logx.Debugf("Announcing to %s", u)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "build announce request")
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.Annotatef(ErrTrackerUnreachable, "%s: %v", t.announceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Annotatef(ErrTrackerRejected, "%s responded %s", t.announceURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Annotatef(ErrTrackerUnreachable, "%s: read body: %v", t.announceURL, err)
	}
	return parseHTTPResponse(body, req)
}

func (t *HTTPTracker) Stop() {
	t.client.CloseIdleConnections()
}

func parseHTTPResponse(body []byte, req *AnnounceRequest) (*AnnounceResult, error) {
	v, err := bencode.Decode(body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	dict, ok := v.Dict()
	if !ok {
		return nil, errors.Annotatef(bencode.ErrTypeMismatch, "tracker response is a %s", v.Kind())
	}
	extras := httpResponseExtras{}
	err = bencode.Unmarshal(v, &extras)
	if err != nil {
		logx.Debugf("Ignoring malformed optional tracker response fields: %v", err)
	}
	if extras.FailureReason != "" {
		return nil, errors.Annotate(ErrTrackerRejected, extras.FailureReason)
	}
	if extras.WarningMessage != "" {
		logx.Infof("Tracker warning: %s", extras.WarningMessage)
	}

	rawPeers, err := bencode.GetBytes(dict, "peers")
	if err != nil {
		return nil, errors.Trace(err)
	}
	peers, err := bittorrent.DecodeCompactPeers(rawPeers)
	if err != nil {
		return nil, errors.Trace(err)
	}
	seeders, err := bencode.GetInt(dict, "complete")
	if err != nil {
		return nil, errors.Trace(err)
	}
	leechers, err := bencode.GetInt(dict, "incomplete")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &AnnounceResult{
		Peers:          peers,
		Files:          req.InScope(),
		Seeders:        seeders,
		Leechers:       leechers,
		Interval:       time.Duration(extras.Interval) * time.Second,
		WarningMessage: extras.WarningMessage,
	}, nil
}
