// README: NSQ producer that forwards ride lifecycle events to an external topic.
package infra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"

	"rideshare/internal/modules/ride"
)

type producer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQPublisher implements ride.Publisher.
type NSQPublisher struct {
	producer producer
	topic    string
}

func NewNSQPublisher(addr, topic string) (*NSQPublisher, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create NSQ producer: %w", err)
	}
	if err := p.Ping(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("ping NSQ daemon %s: %w", addr, err)
	}
	return &NSQPublisher{producer: p, topic: topic}, nil
}

func (p *NSQPublisher) Publish(_ context.Context, e ride.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	if err := p.producer.Publish(p.topic, body); err != nil {
		return fmt.Errorf("publish %s to %s: %w", e.Type, p.topic, err)
	}
	return nil
}

func (p *NSQPublisher) Stop() {
	p.producer.Stop()
}
