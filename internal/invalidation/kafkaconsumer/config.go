package kafkaconsumer

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	// Backoff is the pause between a failed group session and the next one.
	Backoff time.Duration
	// FromOldest replays the retained topic on first join instead of
	// starting at the newest offset.
	FromOldest bool
}

// DefaultConfig starts at the newest offset. Older events concern
// results that have already expired or were never cached here.
func DefaultConfig(brokers []string, topic, groupID string) Config {
	return Config{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          groupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		Backoff:          2 * time.Second,
	}
}

func (c Config) sarama() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Consumer.Group.Session.Timeout = c.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = c.Heartbeat
	sc.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.FromOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Offsets.AutoCommit.Enable = true
	return sc
}
