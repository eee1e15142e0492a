package svc

import (
	"encoding/json"
	"time"

	"peerlinker/common/bittorrent"
	"peerlinker/common/discovery"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/juju/errors"
)

const TopicKnownGoodPeers = "known_good_peers"

// KnownGoodPeers is the message handed to whatever transfers data from the
// discovered peers.
type KnownGoodPeers struct {
	InfoHash     string   `json:"info_hash"`
	Name         string   `json:"name"`
	Peers        []string `json:"peers"`
	Candidates   int      `json:"candidates"`
	Seeders      int64    `json:"seeders"`
	Leechers     int64    `json:"leechers"`
	DiscoveredAt int64    `json:"discovered_at"`
}

type PeerPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewPeerPublisher(publisher message.Publisher) *PeerPublisher {
	return &PeerPublisher{
		publisher: publisher,
		topic:     TopicKnownGoodPeers,
	}
}

func NewAMQPPeerPublisher(uri string) (*PeerPublisher, error) {
	amqpConfig := amqp.NewDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicName)
	publisher, err := amqp.NewPublisher(amqpConfig, watermill.NewStdLogger(false, false))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewPeerPublisher(publisher), nil
}

func (p *PeerPublisher) Publish(meta *bittorrent.Metadata, result *discovery.Result) error {
	payload := KnownGoodPeers{
		InfoHash:     meta.InfoHash.String(),
		Name:         meta.Name,
		Peers:        make([]string, 0, len(result.Accepted)),
		Candidates:   len(result.Candidates),
		DiscoveredAt: time.Now().Unix(),
	}
	for _, e := range result.Accepted {
		payload.Peers = append(payload.Peers, e.String())
	}
	if result.Announce != nil {
		payload.Seeders = result.Announce.Seeders
		payload.Leechers = result.Announce.Leechers
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Trace(err)
	}
	msg := message.NewMessage(watermill.NewUUID(), raw)
	err = p.publisher.Publish(p.topic, msg)
	if err != nil {
		return errors.Annotatef(err, "publish peers of %s", payload.InfoHash)
	}
	return nil
}

func (p *PeerPublisher) Close() error {
	return p.publisher.Close()
}
