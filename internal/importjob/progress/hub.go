// Package progress fans job progress events out to stream subscribers.
package progress

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	PhaseImport = "import"
	PhaseUndo   = "undo"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// Event is one progress tick for a job. Percent is monotone within a
// phase; the final event of a phase carries its terminal status. Import
// events additionally carry the running classification counts and the
// row outcomes accumulated so far.
type Event struct {
	JobID      string    `json:"job_id"`
	Phase      string    `json:"phase"`
	Status     string    `json:"status"`
	Percent    int64     `json:"percent"`
	Processed  int64     `json:"processed"`
	Total      int64     `json:"total"`
	Created    int64     `json:"created"`
	Updated    int64     `json:"updated"`
	Failed     int64     `json:"failed"`
	Duplicates int64     `json:"duplicates"`
	Outcomes   *Outcomes `json:"outcomes,omitempty"`
	ETA        string    `json:"eta,omitempty"`
	At         time.Time `json:"at"`
}

// Outcomes groups row identities by classification. The publisher keeps
// appending while chunks run, so events carry a snapshot, never the
// live slices.
type Outcomes struct {
	Created    []string `json:"created"`
	Updated    []string `json:"updated"`
	Failed     []string `json:"failed"`
	Duplicates []string `json:"duplicates"`
}

func (o *Outcomes) Snapshot() *Outcomes {
	if o == nil {
		return nil
	}
	return &Outcomes{
		Created:    append([]string(nil), o.Created...),
		Updated:    append([]string(nil), o.Updated...),
		Failed:     append([]string(nil), o.Failed...),
		Duplicates: append([]string(nil), o.Duplicates...),
	}
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	jobID string
	id    uint64
	ch    chan Event
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish appends the event to the job's replay buffer and delivers it
// to live subscribers. Slow subscribers drop events rather than block
// the publisher.
func (h *Hub) Publish(jobID string, event Event) {
	if h == nil {
		return
	}
	id := strings.TrimSpace(jobID)
	if id == "" {
		return
	}

	str := h.ensureStream(id)

	str.mu.Lock()
	str.buffer = append(str.buffer, event)
	if len(str.buffer) > h.bufferSize {
		str.buffer = str.buffer[len(str.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(str.subs))
	for _, ch := range str.subs {
		subs = append(subs, ch)
	}
	str.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener for the job and returns the buffered
// events so late subscribers can catch up.
func (h *Hub) Subscribe(jobID string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	id := strings.TrimSpace(jobID)
	if id == "" {
		return nil, nil, errors.New("invalid_job_id")
	}

	str := h.ensureStream(id)
	str.mu.Lock()
	if str.subs == nil {
		str.subs = make(map[uint64]chan Event)
	}
	subID := str.nextID
	str.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	str.subs[subID] = ch
	buffer := append([]Event(nil), str.buffer...)
	str.mu.Unlock()

	return &Subscription{
		hub:   h,
		jobID: id,
		id:    subID,
		ch:    ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(jobID string) *stream {
	h.mu.RLock()
	current := h.streams[jobID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[jobID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[jobID] = current
	}
	return current
}

func (h *Hub) unsubscribe(jobID string, id uint64) {
	if h == nil {
		return
	}

	h.mu.RLock()
	str := h.streams[jobID]
	h.mu.RUnlock()
	if str == nil {
		return
	}

	// The replay buffer outlives the subscribers: a later subscriber
	// still needs the latest snapshot. Only a stream that never saw an
	// event is dropped.
	str.mu.Lock()
	delete(str.subs, id)
	idle := len(str.subs) == 0 && len(str.buffer) == 0
	str.mu.Unlock()
	if !idle {
		return
	}

	h.mu.Lock()
	current := h.streams[jobID]
	if current != str {
		h.mu.Unlock()
		return
	}
	str.mu.Lock()
	idle = len(str.subs) == 0 && len(str.buffer) == 0
	str.mu.Unlock()
	if idle {
		delete(h.streams, jobID)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.jobID, s.id)
	})
}
