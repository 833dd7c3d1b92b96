// bus.go
package bus

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Wildcard tokens. "+" matches exactly one level, "#" matches the remaining
// levels (zero or more) and must be last.
const (
	SingleWild = "+"
	MultiWild  = "#"
)

// Topic is a sequence of comparable tokens (usually strings or ints).
type Topic []any

// T builds a Topic. It panics on a non-comparable token.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token is not comparable")
		}
	}
	return Topic(tokens)
}

// Append returns a new topic with tokens added.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, tokens...)
}

func (t Topic) Len() int     { return len(t) }
func (t Topic) At(i int) any { return t[i] }
func (t Topic) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch v := tok.(type) {
		case string:
			sb.WriteString(v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			sb.WriteString("?")
		}
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender asked for a reply.
func (m *Message) CanReply() bool { return m != nil && len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks: when the queue is full the oldest message is
// dropped. Called with the bus lock held.
func (s *Subscription) deliver(m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
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

// Bus routes messages between connections. Subscriptions live in one trie
// (patterns, may contain wildcards) and retained messages in another
// (concrete topics only).
type Bus struct {
	mu     sync.Mutex
	subs   *node
	ret    *node
	qLen   int
	nextID atomic.Uint32
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{subs: &node{}, ret: &node{}, qLen: queueLen}
}

// NewMessage builds a message. Topics must be concrete.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	matchRetained(b.ret, sub.topic, sub.deliver)
}

// matchRetained calls fn for every retained message under n that matches
// pattern.
func matchRetained(n *node, pattern Topic, fn func(*Message)) {
	if n == nil {
		return
	}
	if len(pattern) == 0 {
		if n.retained != nil {
			fn(n.retained)
		}
		return
	}
	switch pattern[0] {
	case MultiWild:
		walkRetained(n, fn)
	case SingleWild:
		for _, c := range n.children {
			matchRetained(c, pattern[1:], fn)
		}
	default:
		matchRetained(n.children[pattern[0]], pattern[1:], fn)
	}
}

func walkRetained(n *node, fn func(*Message)) {
	if n.retained != nil {
		fn(n.retained)
	}
	for _, c := range n.children {
		walkRetained(c, fn)
	}
}

// matchSubs calls fn for every subscription under n whose pattern matches
// topic.
func matchSubs(n *node, topic Topic, fn func(*Subscription)) {
	if n == nil {
		return
	}
	if h := n.children[MultiWild]; h != nil {
		for _, s := range h.subs {
			fn(s)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			fn(s)
		}
		return
	}
	matchSubs(n.children[topic[0]], topic[1:], fn)
	if topic[0] != SingleWild {
		matchSubs(n.children[SingleWild], topic[1:], fn)
	}
}

// Publish delivers a message to all matching subscribers and updates the
// retained store. A retained message with a nil payload clears the topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matchSubs(b.subs, msg.Topic, func(s *Subscription) { s.deliver(msg) })

	if !msg.Retained {
		return
	}
	if msg.Payload != nil {
		n := b.ret
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		n.retained = msg
		return
	}
	prune(b.ret, msg.Topic, func(n *node) { n.retained = nil })
}

// prune walks topic from root, applies fn to the final node, then removes
// nodes left empty.
func prune(root *node, topic Topic, fn func(*node)) {
	n := root
	stack := make([]*node, 0, len(topic))
	for _, tok := range topic {
		c := n.children[tok]
		if c == nil {
			return
		}
		stack = append(stack, n)
		n = c
	}
	fn(n)
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		c := parent.children[topic[i]]
		if !c.empty() {
			break
		}
		delete(parent.children, topic[i])
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prune(b.subs, sub.topic, func(n *node) {
		for i, s := range n.subs {
			if s == sub {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
	})
	close(sub.ch)
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
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

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
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
// its channel. Unsubscribing twice is a no-op.
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
	if found {
		c.bus.unsubscribe(sub)
	}
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.unsubscribe(sub)
	}
}

// -----------------------------------------------------------------------------
// Request / Reply
// -----------------------------------------------------------------------------

// Request subscribes to a fresh reply topic, stamps it on msg and publishes.
// The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	id := c.bus.nextID.Add(1)
	msg.ReplyTo = T("_reply", c.id, int(id))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// ErrClosed is returned when a reply subscription closes before a reply.
var ErrClosed = errors.New("bus: subscription closed")

// RequestWait publishes msg and waits for the first reply or ctx.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case r, ok := <-sub.Channel():
		if !ok {
			return nil, ErrClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its ReplyTo topic. It reports false when req did not
// ask for a reply.
func (c *Connection) Reply(req *Message, payload any, retained bool) bool {
	if !req.CanReply() {
		return false
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
	return true
}
