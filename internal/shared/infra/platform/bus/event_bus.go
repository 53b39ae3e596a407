package bus

import "context"

// Message es el sobre neutro que viaja hacia el broker. La semántica del
// topic y el formato del payload los deciden los adapters.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type EventBus interface {
	Publish(ctx context.Context, msg Message) error
}
