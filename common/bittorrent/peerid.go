package bittorrent

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	PeerIDSize = 20
	// ClientCode identifies this client in Azureus-style peer ids.
	ClientCode = "PL"

	maxPeerIDPrefix = 8
)

var (
	ErrInvalidVersion     = errors.New("invalid client version")
	ErrIdentifierOverflow = errors.New("peer id prefix too long")
)

type PeerID [PeerIDSize]byte

func (id PeerID) String() string {
	return string(id[:])
}

type Version struct {
	Major int
	Minor int
	Build int
}

func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, errors.Wrapf(ErrInvalidVersion, "%q is not major.minor.build", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, errors.Wrapf(ErrInvalidVersion, "%q: %v", s, err)
		}
		nums[i] = n
	}
	v := Version{Major: nums[0], Minor: nums[1], Build: nums[2]}
	return v, v.Validate()
}

func (v Version) Validate() error {
	if v.Major < 0 || v.Major > 9 {
		return errors.Wrapf(ErrInvalidVersion, "major %d not in 0-9", v.Major)
	}
	if v.Minor < 0 || v.Minor > 99 {
		return errors.Wrapf(ErrInvalidVersion, "minor %d not in 0-99", v.Minor)
	}
	if v.Build < 0 || v.Build > 9 {
		return errors.Wrapf(ErrInvalidVersion, "build %d not in 0-9", v.Build)
	}
	return nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// GeneratePeerID returns "-PL<major><minor:02><build>-" padded to 20 bytes
// with random lowercase letters drawn from rnd. A nil rnd uses a
// time-seeded source.
func GeneratePeerID(v Version, rnd *rand.Rand) (PeerID, error) {
	var id PeerID
	err := v.Validate()
	if err != nil {
		return id, err
	}
	prefix := fmt.Sprintf("-%s%d%02d%d-", ClientCode, v.Major, v.Minor, v.Build)
	if len(prefix) > maxPeerIDPrefix {
		return id, errors.Wrapf(ErrIdentifierOverflow, "%q", prefix)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	n := copy(id[:], prefix)
	for i := n; i < PeerIDSize; i++ {
		id[i] = byte('a' + rnd.Intn(26))
	}
	return id, nil
}
