package events

import "sync"

// Backlog keeps the last broadcast messages for operators joining late.
type Backlog struct {
	mu    sync.Mutex
	limit int
	msgs  []Message
	total uint64
}

func NewBacklog(limit int) *Backlog {
	if limit <= 0 {
		limit = 1
	}
	return &Backlog{limit: limit, msgs: make([]Message, 0, limit)}
}

func (b *Backlog) Add(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.msgs) == b.limit {
		copy(b.msgs, b.msgs[1:])
		b.msgs = b.msgs[:b.limit-1]
	}
	b.msgs = append(b.msgs, m)
	b.total++
}

// Last returns up to n messages, oldest first. n <= 0 returns everything.
func (b *Backlog) Last(n int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if n > 0 && n < len(b.msgs) {
		start = len(b.msgs) - n
	}
	return append([]Message{}, b.msgs[start:]...)
}

// Total returns how many messages were ever added.
func (b *Backlog) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
