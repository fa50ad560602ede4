package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/watermon/internal/store"
)

// DefaultRootTopic prefixes every section topic.
const DefaultRootTopic = "watermon"

// pubsub is the part of Client the Store needs.
type pubsub interface {
	IsConnected() bool
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, retained bool, payload []byte) error
}

// Store is a store.Store backed by retained MQTT messages, one topic per
// section under a root ("watermon/valves", "watermon/leaks", ...). The
// latest retained value of every section is cached locally.
type Store struct {
	client pubsub
	root   string
	sub    *Subscriber

	mu        sync.RWMutex
	sections  map[string][]byte
	reconnect []func()
}

// NewStore creates a store rooted at root. Call Start once the client is
// connected and again from the client's reconnect hook.
func NewStore(client pubsub, root string) *Store {
	if root == "" {
		root = DefaultRootTopic
	}
	root = strings.TrimSuffix(root, "/")
	return &Store{
		client:   client,
		root:     root,
		sub:      NewSubscriber(client),
		sections: make(map[string][]byte),
	}
}

// Topic returns the topic carrying a section.
func (s *Store) Topic(section string) string {
	return s.root + "/" + section
}

// Start subscribes to every section topic. Retained values arrive right
// after the subscription is acknowledged.
func (s *Store) Start() error {
	if err := s.sub.Subscribe(s.root+"/#", s.handle); err != nil {
		return fmt.Errorf("subscribe %s/#: %w", s.root, err)
	}
	return nil
}

// OnReconnect registers fn to run after every Resubscribe, typically to
// push local changes made while the broker was unreachable.
func (s *Store) OnReconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnect = append(s.reconnect, fn)
}

// Resubscribe replays the subscription after a reconnect, then runs the
// OnReconnect hooks.
func (s *Store) Resubscribe() {
	s.sub.Clear()
	if err := s.Start(); err != nil {
		log.Printf("mqtt: resubscribe failed: %v", err)
	}

	s.mu.RLock()
	hooks := append([]func(){}, s.reconnect...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *Store) handle(_ paho.Client, msg paho.Message) {
	section, ok := strings.CutPrefix(msg.Topic(), s.root+"/")
	if !ok || section == "" || strings.Contains(section, "/") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// An empty retained payload clears the topic.
	if len(msg.Payload()) == 0 {
		delete(s.sections, section)
		return
	}
	s.sections[section] = append([]byte{}, msg.Payload()...)
}

// Get decodes the cached sections. It fails with store.ErrUnavailable while
// the broker connection is down so callers keep their last-known state.
func (s *Store) Get(ctx context.Context) (store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.Empty(), err
	}
	if !s.client.IsConnected() {
		return store.Empty(), store.ErrUnavailable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Decode(s.sections), nil
}

// Set publishes value as the retained content of a section.
func (s *Store) Set(ctx context.Context, section string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return store.ErrUnavailable
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal section %s: %w", section, err)
	}
	if err := s.client.Publish(s.Topic(section), true, b); err != nil {
		return fmt.Errorf("publish section %s: %w", section, err)
	}

	s.mu.Lock()
	s.sections[section] = b
	s.mu.Unlock()
	return nil
}
