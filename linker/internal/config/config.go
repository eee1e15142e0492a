package config

import (
	"time"

	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/core/service"
)

type Config struct {
	service.ServiceConf
	TorrentFile           string
	ClientVersion         string `json:",default=0.0.1"`
	ConnectTimeoutSeconds int    `json:",default=10"`
	IOTimeoutSeconds      int    `json:",default=20"`
	TrackerTimeoutSeconds int    `json:",default=15"`
	BatchSize             int    `json:",default=20"`
	Port                  int    `json:",default=6881"`
	NumWant               int    `json:",default=50"`
	StrictHandshake       bool   `json:",default=false"`
	// Files restricts the announce to these file paths, joined with "/".
	Files []string `json:",optional"`
	// RoundIntervalSeconds is the pause between rounds when the tracker
	// does not send an interval. Zero runs a single round.
	RoundIntervalSeconds int    `json:",default=0"`
	Socks5Proxy          string `json:",optional"`
	AMQP                 string `json:",optional"`
	ForceQuitSeconds     int    `json:",default=20"`
}

func (c *Config) MustSetUp() {
	c.ServiceConf.MustSetUp()
	proc.SetTimeToForceQuit(time.Duration(c.ForceQuitSeconds) * time.Second)
}
