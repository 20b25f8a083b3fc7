package ingest

import (
	"context"
	"fmt"
	"time"
)

// Message is one inbound delivery. ID and ReceivedAt are stamped by the
// pipeline on receipt.
type Message struct {
	ID         string
	Topic      string
	Payload    []byte
	ReceivedAt time.Time

	// Ack, when set, is called once the pipeline has finished with the
	// message, whether it was stored or dropped as bad input. Messages
	// discarded by Stop are never acked.
	Ack func()
}

func (m Message) ack() {
	if m.Ack != nil {
		m.Ack()
	}
}

// Transport is the publish/subscribe client the pipeline drives. Implementations
// own reconnect and backoff and must call the OnConnect handler after every
// successful (re)connection.
type Transport interface {
	OnConnect(func())
	OnConnectionLost(func(error))
	OnMessage(func(Message))
	Connect(ctx context.Context) error
	Subscribe(pattern string) error
	Disconnect()
}

// ConnectError is returned by Start when the initial connection fails.
// The pipeline stays in StateConnecting.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
