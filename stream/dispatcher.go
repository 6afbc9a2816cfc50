package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Dispatcher fans messages out to every connection scoped to a board.
// Delivery is best effort and never retried: peers that are closed or not
// draining their queue are skipped without holding up the rest.
type Dispatcher struct {
	registry *Registry
	logger   *log.Logger

	// bridge state; nil redis means purely local fan-out.
	origin  string
	redis   *redis.Client
	channel string
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *log.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// EnableBridge mirrors every publish onto the given redis channel so other
// instances can deliver it to their own connections. origin tags this
// instance's messages so the bridge can skip replaying them locally.
func (d *Dispatcher) EnableBridge(client *redis.Client, channel, origin string) {
	d.redis = client
	d.channel = channel
	d.origin = origin
}

// Publish serializes v once and delivers it to every connection currently
// admitted to the board.
func (d *Dispatcher) Publish(boardID string, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		d.logger.Errorf("stream: marshal broadcast for board %s: %v", boardID, err)
		return
	}
	d.deliverLocal(boardID, data)
	d.publishRemote(boardID, data)
}

func (d *Dispatcher) deliverLocal(boardID string, data []byte) {
	conns := d.registry.ListByBoard(boardID)
	dropped := 0
	for _, c := range conns {
		if !c.enqueue(data) {
			dropped++
		}
	}
	if dropped > 0 {
		d.logger.WithFields(log.Fields{
			"board":   boardID,
			"dropped": dropped,
			"total":   len(conns),
		}).Debug("stream: skipped undeliverable connections")
	}
}

// bridgeEnvelope wraps a broadcast for transit between instances.
type bridgeEnvelope struct {
	Origin  string          `json:"origin"`
	BoardID string          `json:"boardId"`
	Data    json.RawMessage `json:"data"`
}

func (d *Dispatcher) publishRemote(boardID string, data []byte) {
	if d.redis == nil {
		return
	}
	env, err := json.Marshal(bridgeEnvelope{Origin: d.origin, BoardID: boardID, Data: data})
	if err != nil {
		d.logger.Errorf("stream: marshal bridge envelope: %v", err)
		return
	}
	if err := d.redis.Publish(context.Background(), d.channel, env).Err(); err != nil {
		d.logger.Errorf("stream: bridge publish: %v", err)
	}
}

// RunBridge subscribes to the bridge channel and replays broadcasts published
// by other instances into the local registry. It blocks until ctx is done,
// resubscribing whenever the pubsub channel closes.
func (d *Dispatcher) RunBridge(ctx context.Context) {
	if d.redis == nil {
		return
	}
	for {
		sub := d.redis.Subscribe(ctx, d.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var env bridgeEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					d.logger.Errorf("stream: bridge payload: %v", err)
					continue
				}
				if env.Origin == d.origin {
					continue
				}
				d.deliverLocal(env.BoardID, env.Data)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		d.logger.Error("stream: bridge channel closed, resubscribing")
		time.Sleep(time.Second)
	}
}
