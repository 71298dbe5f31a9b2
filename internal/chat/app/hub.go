package app

import (
	"context"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSink external fan-out target (redis bridge, kafka)
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Publisher publish events to subscribers
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

const (
	defaultSubscriptionBuffer = 1024
	defaultSinkBuffer         = 4096
)

// Hub in-process subscription hub, message topics are delivered in seq order
type Hub struct {
	nodeID        string
	reorderWindow time.Duration
	subBuffer     int

	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
	closed bool

	// seqMu serialize ordering and enqueue for every topic
	seqMu sync.Mutex
	rooms map[string]*resequencer

	sinks []*asyncSink
}

// HubOption configure the hub
type HubOption func(*Hub)

// WithReorderWindow how long a gap in a room's seq is waited on before it is skipped
func WithReorderWindow(d time.Duration) HubOption {
	return func(h *Hub) { h.reorderWindow = d }
}

// WithSubscriptionBuffer max queued events before a slow subscription is closed
func WithSubscriptionBuffer(n int) HubOption {
	return func(h *Hub) { h.subBuffer = n }
}

// WithSink fan events out to an external sink
func WithSink(name string, sink EventSink) HubOption {
	return func(h *Hub) {
		h.sinks = append(h.sinks, newAsyncSink(name, sink, defaultSinkBuffer))
	}
}

// NewHub create Hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		nodeID:        uuid.NewString(),
		reorderWindow: 2 * time.Second,
		subBuffer:     defaultSubscriptionBuffer,
		topics:        make(map[string]map[string]*Subscription),
		rooms:         make(map[string]*resequencer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NodeID id stamped on events published by this hub
func (h *Hub) NodeID() string { return h.nodeID }

// SubscribeRoomEvents membership events of userID
func (h *Hub) SubscribeRoomEvents(userID string) *Subscription {
	return h.subscribe(domain.UserTopic(userID))
}

// SubscribeMessageEvents message events of roomID, in append order
func (h *Hub) SubscribeMessageEvents(roomID string) *Subscription {
	return h.subscribe(domain.RoomTopic(roomID))
}

func (h *Hub) subscribe(topic string) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		id:     uuid.NewString(),
		topic:  topic,
		hub:    h,
		max:    h.subBuffer,
		notify: make(chan struct{}, 1),
		out:    make(chan domain.Event),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		close(s.out)
		return s
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[topic] = subs
	}
	subs[s.id] = s
	h.mu.Unlock()

	activeSubscriptions.Inc()
	go s.pump()
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[s.topic]
	if !ok {
		return
	}
	if _, ok := subs[s.id]; !ok {
		return
	}
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(h.topics, s.topic)
	}
	activeSubscriptions.Dec()
}

// Publish deliver locally then hand the event to every sink
func (h *Hub) Publish(ctx context.Context, ev domain.Event) {
	if ev.Origin == "" {
		ev.Origin = h.nodeID
	}
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	h.deliverLocked(ev)
	for _, s := range h.sinks {
		s.enqueue(ev)
	}
}

// Deliver fan an event out to local subscribers only, used for events from other nodes
func (h *Hub) Deliver(ev domain.Event) {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	h.deliverLocked(ev)
}

func (h *Hub) deliverLocked(ev domain.Event) {
	if domain.IsRoomTopic(ev.Topic) && ev.Seq > 0 {
		for _, ready := range h.sequence(ev) {
			h.fanout(ready)
		}
		return
	}
	if ev.Kind == domain.EventSkip {
		return
	}
	h.fanout(ev)
}

// Skip release a seq that will never be published, so later messages are not held back
func (h *Hub) Skip(ctx context.Context, roomID string, seq int64) {
	h.Publish(ctx, domain.NewSkipEvent(roomID, seq))
}

// SeedRoom set the next expected seq of roomID if the hub has no ordering state for it yet
func (h *Hub) SeedRoom(roomID string, next int64) {
	if next <= 0 {
		return
	}
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	topic := domain.RoomTopic(roomID)
	if _, ok := h.rooms[topic]; ok {
		return
	}
	h.rooms[topic] = newResequencer(next)
}

// Reserve register a seq allocated on this node before its message is stored.
// Until the room delivers anything the lowest reserved seq is the starting point.
func (h *Hub) Reserve(roomID string, seq int64) {
	if seq <= 0 {
		return
	}
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	topic := domain.RoomTopic(roomID)
	rs, ok := h.rooms[topic]
	if !ok {
		h.rooms[topic] = newResequencer(seq)
		return
	}
	if seq < rs.next && len(rs.delivered) == 0 {
		rs.next = seq
	}
}

// fanout caller holds seqMu
func (h *Hub) fanout(ev domain.Event) {
	h.mu.RLock()
	subs := h.topics[ev.Topic]
	targets := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.push(ev) {
			hubEventsDropped.WithLabelValues("slow_subscriber").Inc()
			logger.Log.Warn("subscription too slow, closing",
				zap.String("topic", s.topic), zap.String("subscription", s.id))
			s.Close()
		}
	}
	hubEventsDelivered.WithLabelValues(string(ev.Kind)).Inc()
}

// Close cancel every subscription and stop the sinks
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, subs := range h.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}

	h.seqMu.Lock()
	for _, rs := range h.rooms {
		rs.stopTimer()
	}
	h.seqMu.Unlock()

	for _, s := range h.sinks {
		s.close()
	}
}

// dedupWindow how many delivered seqs below next are remembered for duplicate detection
const dedupWindow = 4096

// resequencer per-room ordering state
type resequencer struct {
	next    int64
	pending map[int64]domain.Event
	// seqs already delivered or skipped, pruned to dedupWindow below next
	delivered map[int64]struct{}
	timer     *time.Timer
}

func newResequencer(next int64) *resequencer {
	return &resequencer{
		next:      next,
		pending:   make(map[int64]domain.Event),
		delivered: make(map[int64]struct{}),
	}
}

func (rs *resequencer) stopTimer() {
	if rs.timer != nil {
		rs.timer.Stop()
		rs.timer = nil
	}
}

// drain pop consecutive events starting at next, skip markers are consumed silently
func (rs *resequencer) drain() []domain.Event {
	var out []domain.Event
	for {
		ev, ok := rs.pending[rs.next]
		if !ok {
			rs.prune()
			return out
		}
		delete(rs.pending, rs.next)
		rs.delivered[rs.next] = struct{}{}
		rs.next++
		if ev.Kind != domain.EventSkip {
			out = append(out, ev)
		}
	}
}

func (rs *resequencer) prune() {
	if len(rs.delivered) <= 2*dedupWindow {
		return
	}
	for seq := range rs.delivered {
		if seq < rs.next-dedupWindow {
			delete(rs.delivered, seq)
		}
	}
}

// sequence caller holds seqMu
func (h *Hub) sequence(ev domain.Event) []domain.Event {
	rs, ok := h.rooms[ev.Topic]
	if !ok {
		// 沒有 Reserve 過的房間 (其他節點的訊息)，從這個序號開始排
		rs = newResequencer(ev.Seq)
		h.rooms[ev.Topic] = rs
	}
	if ev.Seq < rs.next {
		return h.late(ev, rs)
	}
	if _, dup := rs.pending[ev.Seq]; dup {
		hubEventsDropped.WithLabelValues("duplicate").Inc()
		return nil
	}
	rs.pending[ev.Seq] = ev
	out := rs.drain()
	h.armGapTimer(ev.Topic, rs)
	return out
}

// late an event behind next: already delivered is a duplicate, anything else
// (gap flushed, or older than the starting point) still goes out, out of order
func (h *Hub) late(ev domain.Event, rs *resequencer) []domain.Event {
	if _, dup := rs.delivered[ev.Seq]; dup {
		hubEventsDropped.WithLabelValues("duplicate").Inc()
		return nil
	}
	rs.delivered[ev.Seq] = struct{}{}
	if ev.Kind == domain.EventSkip {
		return nil
	}
	hubEventsLate.Inc()
	logger.Log.Warn("hub delivering late event",
		zap.String("topic", ev.Topic), zap.Int64("seq", ev.Seq), zap.Int64("next", rs.next))
	return []domain.Event{ev}
}

func (h *Hub) armGapTimer(topic string, rs *resequencer) {
	if len(rs.pending) == 0 {
		rs.stopTimer()
		return
	}
	if rs.timer != nil {
		return
	}
	rs.timer = time.AfterFunc(h.reorderWindow, func() { h.flushGap(topic) })
}

// flushGap stop waiting for the missing seqs of topic and release what is buffered
func (h *Hub) flushGap(topic string) {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()

	rs, ok := h.rooms[topic]
	if !ok {
		return
	}
	rs.timer = nil
	if len(rs.pending) == 0 {
		return
	}
	lowest := int64(-1)
	for seq := range rs.pending {
		if lowest < 0 || seq < lowest {
			lowest = seq
		}
	}
	logger.Log.Warn("hub skipped missing sequence",
		zap.String("topic", topic), zap.Int64("from", rs.next), zap.Int64("to", lowest-1))
	hubEventsDropped.WithLabelValues("gap").Add(float64(lowest - rs.next))
	rs.next = lowest
	for _, ready := range rs.drain() {
		h.fanout(ready)
	}
	h.armGapTimer(topic, rs)
}

// Subscription one cancellable event stream
type Subscription struct {
	id    string
	topic string
	hub   *Hub
	max   int

	mu     sync.Mutex
	queue  []domain.Event
	notify chan struct{}
	out    chan domain.Event

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Topic hub topic of the subscription
func (s *Subscription) Topic() string { return s.topic }

// Events receive side, closed after Close
func (s *Subscription) Events() <-chan domain.Event { return s.out }

// Done closed once the subscription is cancelled
func (s *Subscription) Done() <-chan struct{} { return s.ctx.Done() }

// Close cancel immediately, never blocks, no event is delivered afterwards
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.queue = nil
		s.mu.Unlock()
		s.hub.unsubscribe(s)
	})
}

func (s *Subscription) push(ev domain.Event) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return true
	}
	if len(s.queue) >= s.max {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.ctx.Done():
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = domain.Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if s.ctx.Err() != nil {
			return
		}
		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

// asyncSink forward events to a sink on its own goroutine, in order
type asyncSink struct {
	name string
	sink EventSink
	ch   chan domain.Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newAsyncSink(name string, sink EventSink, size int) *asyncSink {
	s := &asyncSink{
		name: name,
		sink: sink,
		ch:   make(chan domain.Event, size),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *asyncSink) enqueue(ev domain.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		hubEventsDropped.WithLabelValues("sink_" + s.name).Inc()
	}
}

func (s *asyncSink) run() {
	defer close(s.done)
	for ev := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.sink.Publish(ctx, ev); err != nil {
			hubEventsDropped.WithLabelValues("sink_" + s.name).Inc()
			logger.Log.Error("event sink publish err",
				zap.String("sink", s.name), zap.String("topic", ev.Topic), zap.Error(err))
		}
		cancel()
	}
}

func (s *asyncSink) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}
