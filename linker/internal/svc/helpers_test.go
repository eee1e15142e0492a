package svc

import (
	"net/netip"
	"testing"

	"peerlinker/common/bittorrent"
	"peerlinker/common/bittorrent/tracker"
	"peerlinker/common/discovery"

	"github.com/stretchr/testify/require"
)

type discoveryResult struct {
	accepted   []string
	candidates int
}

func (r *discoveryResult) build(t *testing.T) *discovery.Result {
	result := &discovery.Result{
		Announce:   &tracker.AnnounceResult{Seeders: 4, Leechers: 2},
		Candidates: make([]bittorrent.Endpoint, r.candidates),
	}
	for _, a := range r.accepted {
		e, err := bittorrent.NewEndpoint(netip.MustParseAddrPort(a))
		require.NoError(t, err)
		result.Accepted = append(result.Accepted, e)
	}
	return result
}
