package transport

import (
	"context"
	"fmt"
	"log"
	"math/rand"
)

// Message is the content of one step delivery.
type Message struct {
	Body     string
	Type     string
	MediaURL *string
}

// Transport sends a message to an address over an external chat channel.
// connectionRef selects which upstream connection the campaign uses.
type Transport interface {
	Send(ctx context.Context, connectionRef, address string, msg Message) error
}

// MockTransport simulates sending with a configurable success rate. Used by
// local runs and the seeder; real deployments plug in a chat client here.
type MockTransport struct {
	SuccessRate float64
}

func NewMockTransport() *MockTransport {
	return &MockTransport{SuccessRate: 0.9}
}

func (t *MockTransport) Send(ctx context.Context, connectionRef, address string, msg Message) error {
	if rand.Float64() >= t.SuccessRate {
		return fmt.Errorf("mock sending failed")
	}
	log.Printf("[Transport] sent via %s to %s: %.40q", connectionRef, address, msg.Body)
	return nil
}
