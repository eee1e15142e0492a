package bittorrent

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"unicode/utf8"

	"peerlinker/common/bencode"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const HashSize = sha1.Size

var ErrInvalidTorrent = errors.New("invalid torrent")

type InfoHash [HashSize]byte

func (h InfoHash) String() string {
	return hex.EncodeToString(h[:])
}

// Metadata is the parsed content of a .torrent file. It is not modified
// after ParseMetadata returns.
type Metadata struct {
	Announce     string     `json:"announce"`
	AnnounceList [][]string `json:"announce_list,omitempty"`
	Name         string     `json:"name"`
	Comment      string     `json:"comment,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty"`
	CreationDate int64      `json:"creation_date,omitempty"`
	Private      bool       `json:"private,omitempty"`
	PieceLength  int64      `json:"piece_length"`
	// Pieces holds the SHA-1 digest of every piece, concatenated.
	Pieces   []byte   `json:"-"`
	InfoHash InfoHash `json:"info_hash"`
	Files    []*File  `json:"files"`
}

type metainfoExtras struct {
	AnnounceList [][]string `mapstructure:"announce-list"`
	Comment      string     `mapstructure:"comment"`
	CreatedBy    string     `mapstructure:"created by"`
	CreationDate int64      `mapstructure:"creation date"`
}

type infoExtras struct {
	Name    string `mapstructure:"name"`
	Private bool   `mapstructure:"private"`
}

func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return meta, nil
}

// ParseMetadata builds Metadata from the raw bytes of a .torrent file.
// The info hash is the SHA-1 of the info dictionary re-encoded in the
// order it was read.
func ParseMetadata(raw []byte) (*Metadata, error) {
	root, err := bencode.Decode(raw)
	if err != nil {
		return nil, err
	}
	rootDict, ok := root.Dict()
	if !ok {
		return nil, errors.Wrapf(bencode.ErrTypeMismatch, "torrent root is a %s", root.Kind())
	}
	announce, err := bencode.GetBytes(rootDict, "announce")
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(announce) {
		return nil, errors.Wrap(bencode.ErrMalformedEncoding, "announce is not valid UTF-8")
	}
	info, err := bencode.GetDict(rootDict, "info")
	if err != nil {
		return nil, err
	}
	pieceLength, err := bencode.GetInt(info, "piece length")
	if err != nil {
		return nil, err
	}
	if pieceLength <= 0 {
		return nil, errors.Wrapf(ErrInvalidTorrent, "piece length %d", pieceLength)
	}
	pieces, err := bencode.GetBytes(info, "pieces")
	if err != nil {
		return nil, err
	}
	if len(pieces)%HashSize != 0 {
		return nil, errors.Wrapf(bencode.ErrMalformedEncoding, "pieces length %d is not a multiple of %d", len(pieces), HashSize)
	}
	rawInfo, err := bencode.Encode(bencode.NewDictValue(info))
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Announce:    string(announce),
		PieceLength: pieceLength,
		Pieces:      pieces,
		InfoHash:    sha1.Sum(rawInfo),
	}

	// Informational fields never fail the parse. Whatever has the expected
	// shape is kept, the rest stays zero.
	extras := metainfoExtras{}
	err = bencode.Unmarshal(root, &extras)
	if err != nil {
		logrus.Debugf("Ignoring malformed optional torrent fields: %v", err)
	}
	meta.AnnounceList = extras.AnnounceList
	meta.Comment = extras.Comment
	meta.CreatedBy = extras.CreatedBy
	meta.CreationDate = extras.CreationDate

	ie := infoExtras{}
	err = bencode.Unmarshal(bencode.NewDictValue(info), &ie)
	if err != nil {
		logrus.Debugf("Ignoring malformed optional info fields: %v", err)
	}
	meta.Name = ie.Name
	meta.Private = ie.Private

	if _, ok := bencode.Lookup(info, "length"); ok {
		f, err := singleFile(info, pieceLength)
		if err != nil {
			return nil, err
		}
		meta.Files = []*File{f}
	} else {
		meta.Files, err = multiFile(info, pieceLength)
		if err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func singleFile(info *bencode.Dict, pieceLength int64) (*File, error) {
	length, err := bencode.GetInt(info, "length")
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, errors.Wrapf(ErrInvalidTorrent, "negative length %d", length)
	}
	name, err := bencode.GetString(info, "name")
	if err != nil {
		return nil, err
	}
	return &File{
		Name:      name,
		Length:    length,
		NumPieces: pieceCount(length, pieceLength),
	}, nil
}

func multiFile(info *bencode.Dict, pieceLength int64) ([]*File, error) {
	if _, ok := bencode.Lookup(info, "files"); !ok {
		return nil, errors.Wrap(ErrInvalidTorrent, "info has neither length nor files")
	}
	entries, err := bencode.GetList(info, "files")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Wrap(ErrInvalidTorrent, "empty file list")
	}
	files := make([]*File, 0, len(entries))
	for i, entry := range entries {
		fd, ok := entry.Dict()
		if !ok {
			return nil, errors.Wrapf(bencode.ErrTypeMismatch, "files[%d] is a %s", i, entry.Kind())
		}
		segments, err := bencode.GetList(fd, "path")
		if err != nil {
			return nil, errors.Wrapf(err, "files[%d]", i)
		}
		if len(segments) == 0 {
			return nil, errors.Wrapf(ErrInvalidTorrent, "files[%d] has an empty path", i)
		}
		path := make([]string, 0, len(segments))
		for _, seg := range segments {
			b, ok := seg.Bytes()
			if !ok {
				return nil, errors.Wrapf(bencode.ErrTypeMismatch, "files[%d] path segment is a %s", i, seg.Kind())
			}
			path = append(path, string(b))
		}
		length, err := bencode.GetInt(fd, "length")
		if err != nil {
			return nil, errors.Wrapf(err, "files[%d]", i)
		}
		if length < 0 {
			return nil, errors.Wrapf(ErrInvalidTorrent, "files[%d] has negative length %d", i, length)
		}
		files = append(files, &File{
			Name:      path[len(path)-1],
			Path:      path,
			Length:    length,
			NumPieces: pieceCount(length, pieceLength),
		})
	}
	return files, nil
}

func (m *Metadata) IsSingleFile() bool {
	return len(m.Files) == 1 && m.Files[0].Path == nil
}

func (m *Metadata) TotalLength() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Length
	}
	return total
}

func (m *Metadata) NumPieces() int {
	return len(m.Pieces) / HashSize
}

func (m *Metadata) PieceHash(i int) ([]byte, bool) {
	if i < 0 || i >= m.NumPieces() {
		return nil, false
	}
	return m.Pieces[i*HashSize : (i+1)*HashSize], true
}
