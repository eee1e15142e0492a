package svc

import (
	"strings"
	"time"

	"peerlinker/common/bittorrent"
	"peerlinker/common/bittorrent/tracker"
	"peerlinker/common/discovery"
	"peerlinker/linker/internal/config"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config       config.Config
	Metadata     *bittorrent.Metadata
	Orchestrator *discovery.Orchestrator
	Publisher    *PeerPublisher
	Discovery    *DiscoveryService
}

func NewServiceContext(c config.Config) *ServiceContext {
	svcCtx := &ServiceContext{
		Config: c,
	}
	var err error
	svcCtx.Metadata, err = bittorrent.LoadMetadata(c.TorrentFile)
	if err != nil {
		logx.Errorf("Failed to load torrent %s: %+v", c.TorrentFile, err)
		panic(err)
	}
	svcCtx.Orchestrator, err = NewOrchestrator(c, svcCtx.Metadata, nil)
	if err != nil {
		logx.Errorf("Failed to create orchestrator: %+v", err)
		panic(err)
	}
	if len(c.AMQP) > 0 {
		svcCtx.Publisher, err = NewAMQPPeerPublisher(c.AMQP)
		if err != nil {
			logx.Errorf("Failed to create publisher: %+v", err)
			panic(err)
		}
	}
	InjectDiscoveryService(svcCtx)
	return svcCtx
}

// NewOrchestrator builds a discovery session from the service config. A
// non-nil tr replaces the tracker named by the torrent.
func NewOrchestrator(c config.Config, meta *bittorrent.Metadata, tr tracker.Tracker) (*discovery.Orchestrator, error) {
	version, err := bittorrent.ParseVersion(c.ClientVersion)
	if err != nil {
		return nil, errors.Trace(err)
	}
	files, err := selectFiles(meta, c.Files)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts := discovery.Options{
		Version:         version,
		ConnectTimeout:  time.Duration(c.ConnectTimeoutSeconds) * time.Second,
		IOTimeout:       time.Duration(c.IOTimeoutSeconds) * time.Second,
		BatchSize:       c.BatchSize,
		Files:           files,
		Port:            uint16(c.Port),
		NumWant:         c.NumWant,
		StrictHandshake: c.StrictHandshake,
		Tracker:         tr,
		TrackerOptions: tracker.Options{
			Timeout:   time.Duration(c.TrackerTimeoutSeconds) * time.Second,
			UserAgent: "peerlinker/" + version.String(),
		},
		OnOutcome:         recordOutcome,
		TrafficMetricFunc: recordTraffic,
	}
	if len(c.Socks5Proxy) > 0 {
		opts.Dialer, err = proxy.SOCKS5("tcp", c.Socks5Proxy, nil, nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	return discovery.New(meta, opts)
}

// selectFiles maps configured paths onto the torrent's files. No paths
// selects every file.
func selectFiles(meta *bittorrent.Metadata, paths []string) ([]*bittorrent.File, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	byPath := make(map[string]*bittorrent.File, len(meta.Files))
	for _, f := range meta.Files {
		if f.Path == nil {
			byPath[f.Name] = f
			continue
		}
		byPath[strings.Join(f.Path, "/")] = f
	}
	files := make([]*bittorrent.File, 0, len(paths))
	for _, p := range paths {
		f, ok := byPath[p]
		if !ok {
			return nil, errors.NotFoundf("file %q in torrent %s", p, meta.Name)
		}
		files = append(files, f)
	}
	return files, nil
}
