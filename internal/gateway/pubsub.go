package gateway

import (
	"context"
	"log"
)

// PubSubRouter relays Redis PubSub messages to the broadcaster, so a hub
// in one process can stream cycles run by another.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// Run subscribes to the advice pattern and the cycle channel.
// Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.hub.Rdb.PSubscribe(ctx, AdvicePrefix+"*", CycleChannel)
	defer pubsub.Close()

	log.Printf("[gateway] relaying Redis channels %s* and %s", AdvicePrefix, CycleChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
