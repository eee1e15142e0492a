package bittorrent

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePeerID(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for major := 0; major <= 9; major++ {
		for minor := 0; minor <= 99; minor += 7 {
			for build := 0; build <= 9; build += 3 {
				id, err := GeneratePeerID(Version{major, minor, build}, rnd)
				if !assert.NoError(t, err) {
					return
				}
				s := id.String()
				assert.Len(t, s, PeerIDSize)
				assert.Equal(t, fmt.Sprintf("-PL%d%02d%d-", major, minor, build), s[:8])
				for _, c := range s[8:] {
					assert.True(t, c >= 'a' && c <= 'z', "padding %q", s)
				}
			}
		}
	}
}

func TestGeneratePeerID_deterministic(t *testing.T) {
	a, err := GeneratePeerID(Version{0, 0, 1}, rand.New(rand.NewSource(42)))
	assert.NoError(t, err)
	b, err := GeneratePeerID(Version{0, 0, 1}, rand.New(rand.NewSource(42)))
	assert.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "-PL0001-", a.String()[:8])
}

func TestGeneratePeerID_invalidVersion(t *testing.T) {
	for _, v := range []Version{{10, 0, 0}, {0, 100, 0}, {0, 0, 10}, {-1, 0, 0}} {
		_, err := GeneratePeerID(v, nil)
		assert.ErrorIs(t, err, ErrInvalidVersion, v.String())
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.12.3")
	assert.NoError(t, err)
	assert.Equal(t, Version{1, 12, 3}, v)

	_, err = ParseVersion("1.2")
	assert.ErrorIs(t, err, ErrInvalidVersion)
	_, err = ParseVersion("1.x.3")
	assert.ErrorIs(t, err, ErrInvalidVersion)
	_, err = ParseVersion("1.100.3")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}
