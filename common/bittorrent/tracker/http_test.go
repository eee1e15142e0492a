package tracker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"peerlinker/common/bencode"
	"peerlinker/common/bittorrent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata(announce string) *bittorrent.Metadata {
	meta := &bittorrent.Metadata{
		Announce:    announce,
		Name:        "fixture",
		PieceLength: 16384,
		Files: []*bittorrent.File{
			{Name: "a.bin", Path: []string{"a.bin"}, Length: 1000, NumPieces: 1},
			{Name: "b.bin", Path: []string{"b.bin"}, Length: 234, NumPieces: 1},
		},
	}
	for i := range meta.InfoHash {
		meta.InfoHash[i] = 0xFF
	}
	return meta
}

func testPeerID() bittorrent.PeerID {
	id := bittorrent.PeerID{}
	copy(id[:], "-PL0001-abcdefghijkl")
	return id
}

func trackerBody(t *testing.T, peers []byte, extra map[string]bencode.Value) []byte {
	d := bencode.NewDict()
	d.Set("complete", bencode.NewInt(7))
	d.Set("incomplete", bencode.NewInt(3))
	d.Set("interval", bencode.NewInt(1800))
	d.Set("peers", bencode.NewBytes(peers))
	for k, v := range extra {
		d.Set(k, v)
	}
	b, err := bencode.Encode(bencode.NewDictValue(d))
	require.NoError(t, err)
	return b
}

func TestEncodeInfoHash(t *testing.T) {
	meta := testMetadata("")
	assert.Equal(t, strings.Repeat("%FF", 20), EncodeInfoHash(meta.InfoHash))

	h := bittorrent.InfoHash{}
	copy(h[:], "abcdefghij0123456789")
	enc := EncodeInfoHash(h)
	assert.Len(t, enc, 60)
	assert.True(t, strings.HasPrefix(enc, "%61%62%63"))
}

func TestHTTPTracker_AnnounceURL(t *testing.T) {
	tr := NewHTTPTracker("http://tracker.local/announce", Options{})
	req := &AnnounceRequest{Metadata: testMetadata(""), PeerID: testPeerID()}
	expected := "http://tracker.local/announce?info_hash=" + strings.Repeat("%FF", 20) +
		"&peer_id=-PL0001-abcdefghijkl&port=6881&downloaded=0&uploaded=0&left=1234&numwant=50&event=started&compact=1"
	assert.Equal(t, expected, tr.AnnounceURL(req))

	tr = NewHTTPTracker("http://tracker.local/announce?passkey=x", Options{})
	req.Files = req.Metadata.Files[1:]
	u := tr.AnnounceURL(req)
	assert.True(t, strings.HasPrefix(u, "http://tracker.local/announce?passkey=x&info_hash="))
	assert.Contains(t, u, "&left=234&")
}

func TestHTTPTracker_Announce(t *testing.T) {
	var query, userAgent, accept string
	peers := []byte{192, 168, 1, 2, 0x1A, 0xE1, 10, 0, 0, 1, 0x1A, 0xE2}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		_, _ = w.Write(trackerBody(t, peers, nil))
	}))
	defer srv.Close()

	tr, err := New(srv.URL+"/announce", Options{UserAgent: "peerlinker/0.0.1"})
	require.NoError(t, err)
	defer tr.Stop()
	req := &AnnounceRequest{Metadata: testMetadata(srv.URL), PeerID: testPeerID()}
	result, err := tr.Announce(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "info_hash="+strings.Repeat("%FF", 20)+"&"))
	assert.Equal(t, "peerlinker/0.0.1", userAgent)
	assert.Equal(t, "application/json", accept)
	require.Len(t, result.Peers, 2)
	assert.Equal(t, "192.168.1.2:6881", result.Peers[0].String())
	assert.Equal(t, "10.0.0.1:6882", result.Peers[1].String())
	assert.Equal(t, int64(7), result.Seeders)
	assert.Equal(t, int64(3), result.Leechers)
	assert.Equal(t, 30*time.Minute, result.Interval)
	assert.Len(t, result.Files, 2)
}

func TestHTTPTracker_MalformedOptionalFields(t *testing.T) {
	peers := []byte{127, 0, 0, 1, 0x1A, 0xE1}
	warning := bencode.NewDict()
	warning.Set("text", bencode.NewString("slow down"))
	body := trackerBody(t, peers, map[string]bencode.Value{
		"warning message": bencode.NewDictValue(warning),
		"tracker id":      bencode.NewInt(5),
		"interval":        bencode.NewString("soon"),
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tr := NewHTTPTracker(srv.URL, Options{})
	result, err := tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(srv.URL), PeerID: testPeerID()})
	require.NoError(t, err)
	assert.Len(t, result.Peers, 1)
	assert.Equal(t, int64(7), result.Seeders)
	assert.Empty(t, result.WarningMessage)
	assert.Zero(t, result.Interval)
}

func TestHTTPTracker_AnnounceErrors(t *testing.T) {
	cases := map[string]struct {
		status  int
		body    func(t *testing.T) []byte
		wantErr error
	}{
		"non 2xx": {
			status:  http.StatusForbidden,
			body:    func(t *testing.T) []byte { return trackerBody(t, nil, nil) },
			wantErr: ErrTrackerRejected,
		},
		"failure reason": {
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				return trackerBody(t, nil, map[string]bencode.Value{"failure reason": bencode.NewString("unregistered torrent")})
			},
			wantErr: ErrTrackerRejected,
		},
		"peers not multiple of 6": {
			status:  http.StatusOK,
			body:    func(t *testing.T) []byte { return trackerBody(t, bytes.Repeat([]byte{1}, 7), nil) },
			wantErr: bencode.ErrMalformedEncoding,
		},
		"garbage body": {
			status:  http.StatusOK,
			body:    func(t *testing.T) []byte { return []byte("<html>") },
			wantErr: bencode.ErrMalformedEncoding,
		},
		"missing complete": {
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				d := bencode.NewDict()
				d.Set("incomplete", bencode.NewInt(1))
				d.Set("peers", bencode.NewBytes(nil))
				b, err := bencode.Encode(bencode.NewDictValue(d))
				require.NoError(t, err)
				return b
			},
			wantErr: bencode.ErrMissingKey,
		},
		"peers wrong type": {
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				return trackerBody(t, nil, map[string]bencode.Value{"peers": bencode.NewList()})
			},
			wantErr: bencode.ErrTypeMismatch,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			body := c.body(t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write(body)
			}))
			defer srv.Close()
			tr := NewHTTPTracker(srv.URL, Options{})
			_, err := tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(srv.URL), PeerID: testPeerID()})
			assert.ErrorIs(t, err, c.wantErr)
		})
	}
}

func TestHTTPTracker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tr := NewHTTPTracker(addr, Options{Timeout: time.Second})
	_, err := tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(addr), PeerID: testPeerID()})
	assert.ErrorIs(t, err, ErrTrackerUnreachable)
}

func TestHTTPTracker_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTracker(srv.URL, Options{Timeout: 100 * time.Millisecond})
	_, err := tr.Announce(context.Background(), &AnnounceRequest{Metadata: testMetadata(srv.URL), PeerID: testPeerID()})
	assert.ErrorIs(t, err, ErrTrackerUnreachable)
}

func TestNew(t *testing.T) {
	tr, err := New("http://tracker.local/announce", Options{})
	require.NoError(t, err)
	assert.IsType(t, &HTTPTracker{}, tr)

	tr, err = New("udp://tracker.local:6969/announce", Options{})
	require.NoError(t, err)
	assert.IsType(t, &UDPTracker{}, tr)

	_, err = New("wss://tracker.local/announce", Options{})
	assert.Error(t, err)
}
