package mqtt

import (
	"sort"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// subscribeClient is the part of Client a Subscriber needs.
type subscribeClient interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Subscriber tracks topic subscriptions so they are made once per
// connection and can be replayed after a reconnect.
type Subscriber struct {
	mu         sync.RWMutex
	client     subscribeClient
	subscribed map[string]bool // topic -> subscribed
}

// NewSubscriber creates a subscriber on top of client.
func NewSubscriber(client subscribeClient) *Subscriber {
	return &Subscriber{
		client:     client,
		subscribed: make(map[string]bool),
	}
}

// Subscribe subscribes to topic if not already subscribed.
// This is idempotent - calling multiple times for the same topic is safe.
func (s *Subscriber) Subscribe(topic string, handler paho.MessageHandler) error {
	s.mu.RLock()
	done := s.subscribed[topic]
	s.mu.RUnlock()
	if done {
		return nil
	}

	if err := s.client.Subscribe(topic, handler); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed[topic] = true
	s.mu.Unlock()
	return nil
}

// IsSubscribed returns true if the topic is already subscribed.
func (s *Subscriber) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed[topic]
}

// Topics returns the subscribed topics in sorted order.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Clear forgets every subscription.
// Call this on reconnect so topics are subscribed again.
func (s *Subscriber) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}
