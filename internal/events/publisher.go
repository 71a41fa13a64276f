// Package events publishes resource lifecycle events to NATS. A nil
// publisher is valid and drops everything, so callers never branch on
// whether eventing is configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectResources is the subject resource lifecycle events publish on.
const SubjectResources = "stack.events"

// Event is the JSON payload published for each resource transition.
type Event struct {
	Event      string `json:"event"`
	Deployment string `json:"deployment"`
	Address    string `json:"address"`
	ProviderID string `json:"provider_id,omitempty"`
	Time       int64  `json:"time"`
}

type Publisher struct {
	nc  *nats.Conn
	url string
}

func NewPublisher(url string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("stackforge-stackd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, url: url}, nil
}

// PublishEvent marshals and publishes one lifecycle event. Safe on a nil
// receiver.
func (p *Publisher) PublishEvent(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	if ev.Time == 0 {
		ev.Time = time.Now().Unix()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, SubjectResources, payload)
}

func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p == nil {
		return nil
	}
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	return p.nc.Publish(subject, payload)
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
