package svc

import (
	"context"
	"sync"
	"time"

	"peerlinker/common/discovery"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

// DiscoveryService runs discovery rounds for the configured torrent and
// hands every known-good set to the publisher.
type DiscoveryService struct {
	svcCtx   *ServiceContext
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration

	mu      sync.Mutex
	results []*discovery.Result
}

func InjectDiscoveryService(svcCtx *ServiceContext) {
	svcCtx.Discovery = NewDiscoveryService(svcCtx)
}

func NewDiscoveryService(svcCtx *ServiceContext) *DiscoveryService {
	s := &DiscoveryService{
		svcCtx:   svcCtx,
		interval: time.Duration(svcCtx.Config.RoundIntervalSeconds) * time.Second,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start blocks until the single round finishes, or until Stop when rounds
// repeat.
func (s *DiscoveryService) Start() {
	for {
		result, err := s.round()
		if err != nil {
			logx.Errorf("Discovery round failed: %+v", err)
		}
		if s.interval <= 0 {
			return
		}
		wait := s.interval
		if result != nil && result.Announce.Interval > wait {
			wait = result.Announce.Interval
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *DiscoveryService) Stop() {
	s.cancel()
	s.svcCtx.Orchestrator.Stop()
	if s.svcCtx.Publisher != nil {
		err := s.svcCtx.Publisher.Close()
		if err != nil {
			logx.Errorf("Failed to close publisher: %+v", err)
		}
	}
}

// Results returns the rounds that completed so far.
func (s *DiscoveryService) Results() []*discovery.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*discovery.Result, len(s.results))
	copy(ret, s.results)
	return ret
}

func (s *DiscoveryService) round() (*discovery.Result, error) {
	meta := s.svcCtx.Metadata
	result, err := s.svcCtx.Orchestrator.Discover(s.ctx)
	if result == nil {
		metricAnnounceCounter.Inc("fail")
		return nil, errors.Trace(err)
	}
	metricAnnounceCounter.Inc("success")
	metricKnownGoodPeers.Set(float64(len(result.Accepted)), meta.InfoHash.String())
	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()
	logx.Infof("Round done for %s: %d of %d peers accepted", meta.Name, len(result.Accepted), len(result.Candidates))
	for _, e := range result.Accepted {
		logx.Infof("Known good peer %s", e)
	}
	if err != nil {
		return result, errors.Trace(err)
	}
	if s.svcCtx.Publisher != nil {
		err = s.svcCtx.Publisher.Publish(meta, result)
		if err != nil {
			return result, errors.Trace(err)
		}
	}
	return result, nil
}
