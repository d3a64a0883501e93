// Package hub keeps the live websocket connections of every group and fans
// events out to them.
//
// The registry is a derived index of who is connected right now. It is never
// consulted for membership; the session store stays authoritative. Groups
// are spread over shards so unrelated groups never share a lock.
package hub

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/metrics"
)

const shardCount = 32

type shard struct {
	mu     sync.RWMutex
	groups map[string]map[*Conn]struct{}
}

// Hub is the connection registry.
type Hub struct {
	shards  [shardCount]*shard
	metrics *metrics.Metrics
}

// New creates an empty Hub. m may be nil.
func New(m *metrics.Metrics) *Hub {
	h := &Hub{metrics: m}
	for i := range h.shards {
		h.shards[i] = &shard{groups: make(map[string]map[*Conn]struct{})}
	}
	return h
}

func (h *Hub) shard(groupID string) *shard {
	f := fnv.New32a()
	f.Write([]byte(groupID))
	return h.shards[f.Sum32()%shardCount]
}

// Register adds c to its group's roster.
func (h *Hub) Register(c *Conn) {
	sh := h.shard(c.groupID)
	sh.mu.Lock()
	conns := sh.groups[c.groupID]
	if conns == nil {
		conns = make(map[*Conn]struct{})
		sh.groups[c.groupID] = conns
	}
	conns[c] = struct{}{}
	sh.mu.Unlock()

	h.metrics.ConnectionOpened()
	slog.Debug("Connection registered", "group_id", c.groupID, "member_id", c.memberID)
}

// Unregister removes c from its group's roster and closes its send queue.
// Calling it more than once is safe.
func (h *Hub) Unregister(c *Conn) {
	sh := h.shard(c.groupID)
	sh.mu.Lock()
	conns := sh.groups[c.groupID]
	_, ok := conns[c]
	if ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(sh.groups, c.groupID)
		}
	}
	sh.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.metrics.ConnectionClosed()
	slog.Debug("Connection unregistered", "group_id", c.groupID, "member_id", c.memberID)
}

// Broadcast sends e to every connection of the group except those of
// excludeMemberID, which may be empty.
func (h *Hub) Broadcast(groupID string, e events.Event, excludeMemberID string) {
	h.deliver(groupID, e, func(c *Conn) bool {
		return excludeMemberID == "" || c.memberID != excludeMemberID
	})
}

// SendTo sends e only to the connections of the given members.
func (h *Hub) SendTo(groupID string, memberIDs []string, e events.Event) {
	if len(memberIDs) == 0 {
		return
	}
	targets := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		targets[id] = true
	}
	h.deliver(groupID, e, func(c *Conn) bool { return targets[c.memberID] })
}

// Disconnect sends e to the member's connections and then closes them.
func (h *Hub) Disconnect(groupID, memberID string, e events.Event) {
	var conns []*Conn
	sh := h.shard(groupID)
	sh.mu.RLock()
	for c := range sh.groups[groupID] {
		if c.memberID == memberID {
			conns = append(conns, c)
		}
	}
	sh.mu.RUnlock()

	raw, err := events.Encode(e)
	if err != nil {
		slog.Error("Failed to encode event", "kind", e.Kind(), "error", err)
	}
	for _, c := range conns {
		if raw != nil {
			c.enqueue(raw)
		}
		h.Unregister(c)
	}
}

// Connected returns the member IDs with at least one open connection.
func (h *Hub) Connected(groupID string) []string {
	sh := h.shard(groupID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for c := range sh.groups[groupID] {
		if !seen[c.memberID] {
			seen[c.memberID] = true
			ids = append(ids, c.memberID)
		}
	}
	return ids
}

// Count returns the number of open connections of the group.
func (h *Hub) Count(groupID string) int {
	sh := h.shard(groupID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.groups[groupID])
}

// Close drops every connection.
func (h *Hub) Close() {
	var all []*Conn
	for _, sh := range h.shards {
		sh.mu.RLock()
		for _, conns := range sh.groups {
			for c := range conns {
				all = append(all, c)
			}
		}
		sh.mu.RUnlock()
	}
	for _, c := range all {
		h.Unregister(c)
	}
}

// deliver encodes e once and queues it on every matching connection. A
// connection whose queue is full is dropped; its client reconnects and
// resyncs from a snapshot.
func (h *Hub) deliver(groupID string, e events.Event, match func(*Conn) bool) {
	raw, err := events.Encode(e)
	if err != nil {
		slog.Error("Failed to encode event", "kind", e.Kind(), "error", err)
		return
	}

	var slow []*Conn
	sh := h.shard(groupID)
	sh.mu.RLock()
	for c := range sh.groups[groupID] {
		if match(c) && !c.enqueue(raw) {
			slow = append(slow, c)
		}
	}
	sh.mu.RUnlock()

	for _, c := range slow {
		h.metrics.BroadcastDropped()
		slog.Warn("Dropping slow connection", "group_id", groupID, "member_id", c.memberID, "kind", e.Kind())
		h.Unregister(c)
	}
}
