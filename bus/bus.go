// bus.go
package bus

import (
	"reflect"
	"strconv"
	"sync"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of comparable tokens. Subscriptions may use the
// wildcards "+" (exactly one level) and "#" (zero or more trailing levels).
type Topic []any

const (
	wildOne = "+"
	wildAll = "#"
)

// T builds a topic from tokens. It panics on a non-comparable token, since
// such a token could never be used as a trie key.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: non-comparable topic token")
		}
	}
	return Topic(tokens)
}

func (t Topic) String() string {
	s := ""
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		switch v := tok.(type) {
		case string:
			s += v
		case int:
			s += strconv.Itoa(v)
		default:
			s += "?"
		}
	}
	return s
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.children) == 0 && n.retained == nil
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.Mutex
	subs *node // keyed by subscription pattern
	ret  *node // keyed by concrete topic, retained messages only
	qLen int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{subs: &node{}, ret: &node{}, qLen: queueLen}
}

// NewMessage builds a message; the topic is copied.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: append(Topic(nil), topic...), Payload: payload, Retained: retained}
}

// deliver never blocks: when a queue is full its oldest message is dropped.
func deliver(sub *Subscription, msg *Message) {
	for {
		select {
		case sub.ch <- msg:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// Publish delivers msg to every matching subscriber and updates the
// retained store. A retained message with a nil payload clears the slot.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		b.storeRetained(msg)
	}

	var out []*Subscription
	collect(b.subs, msg.Topic, &out)
	for _, sub := range out {
		deliver(sub, msg)
	}
}

func (b *Bus) storeRetained(msg *Message) {
	if msg.Payload != nil {
		n := b.ret
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		n.retained = msg
		return
	}

	// Clear and prune.
	n := b.ret
	stack := []*node{n}
	for _, tok := range msg.Topic {
		if n = n.child(tok, false); n == nil {
			return
		}
		stack = append(stack, n)
	}
	n.retained = nil
	for i := len(msg.Topic) - 1; i >= 0; i-- {
		if !stack[i+1].empty() {
			break
		}
		delete(stack[i].children, msg.Topic[i])
	}
}

// collect walks the subscription trie for a concrete topic.
func collect(n *node, topic Topic, out *[]*Subscription) {
	if c := n.child(wildAll, false); c != nil {
		*out = append(*out, c.subs...)
	}
	if len(topic) == 0 {
		*out = append(*out, n.subs...)
		return
	}
	if c := n.child(topic[0], false); c != nil {
		collect(c, topic[1:], out)
	}
	if c := n.child(wildOne, false); c != nil {
		collect(c, topic[1:], out)
	}
}

// retainedFor walks the retained trie for a subscription pattern.
func retainedFor(n *node, pattern Topic, out *[]*Message) {
	if len(pattern) == 0 {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch pattern[0] {
	case wildAll:
		var walk func(*node)
		walk = func(m *node) {
			if m.retained != nil {
				*out = append(*out, m.retained)
			}
			for _, c := range m.children {
				walk(c)
			}
		}
		walk(n)
	case wildOne:
		for _, c := range n.children {
			retainedFor(c, pattern[1:], out)
		}
	default:
		if c := n.child(pattern[0], false); c != nil {
			retainedFor(c, pattern[1:], out)
		}
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	var msgs []*Message
	retainedFor(b.ret, sub.topic, &msgs)
	for _, m := range msgs {
		deliver(sub, m)
	}
}

func (b *Bus) removeSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	stack := []*node{n}
	for _, tok := range sub.topic {
		if n = n.child(tok, false); n == nil {
			return
		}
		stack = append(stack, n)
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	for i := len(sub.topic) - 1; i >= 0; i-- {
		if !stack[i+1].empty() {
			break
		}
		delete(stack[i].children, sub.topic[i])
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection. Retained
// messages matching topic are queued immediately.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: append(Topic(nil), topic...),
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes
// its channel. Calling it twice is a no-op.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.removeSubscription(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.removeSubscription(sub)
		close(sub.ch)
	}
}
