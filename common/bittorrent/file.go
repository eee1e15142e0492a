package bittorrent

type File struct {
	// Name is the suggested filename: the torrent name for single-file
	// torrents, the last path segment otherwise.
	Name string `json:"name"`
	// Path is nil for single-file torrents.
	Path      []string `json:"path,omitempty"`
	Length    int64    `json:"length"`
	NumPieces int64    `json:"num_pieces"`
}

func (f *File) String() string {
	return f.Name
}

func pieceCount(length, pieceLength int64) int64 {
	if length <= 0 {
		return 0
	}
	return (length + pieceLength - 1) / pieceLength
}
