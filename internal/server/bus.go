package server

import (
	"encoding/json"
	"slices"
	"sync"
)

// defaultRetain bounds how many messages the bus keeps for late pollers.
const defaultRetain = 1024

type message struct {
	ID    int64
	Group string // empty: every connection
	Data  json.RawMessage
}

// bus is an in-memory, append-only message log with a wakeup channel that is
// closed and replaced on every publish.
type bus struct {
	mu     sync.Mutex
	msgs   []message
	lastID int64
	retain int
	notify chan struct{}
	groups map[string][]string
}

func newBus(retain int) *bus {
	if retain <= 0 {
		retain = defaultRetain
	}
	return &bus{
		retain: retain,
		notify: make(chan struct{}),
		groups: make(map[string][]string),
	}
}

func (b *bus) publish(group string, data json.RawMessage) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	b.msgs = append(b.msgs, message{ID: b.lastID, Group: group, Data: data})
	if over := len(b.msgs) - b.retain; over > 0 {
		b.msgs = slices.Delete(b.msgs, 0, over)
	}
	close(b.notify)
	b.notify = make(chan struct{})
	return b.lastID
}

// since returns the messages after cursor visible to a member of groups, the
// id of the newest message on the bus, and a channel closed on the next publish.
func (b *bus) since(cursor int64, groups []string) ([]message, int64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []message
	for _, m := range b.msgs {
		if m.ID <= cursor {
			continue
		}
		if m.Group == "" || slices.Contains(groups, m.Group) {
			out = append(out, m)
		}
	}
	return out, b.lastID, b.notify
}

func (b *bus) last() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastID
}

func (b *bus) groupsOf(connID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.groups[connID])
}

func (b *bus) known(connID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.groups[connID]
	return ok
}

// setGroups replaces the group set of connID and returns a copy.
func (b *bus) setGroups(connID string, groups []string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[connID] = slices.Clone(groups)
	return slices.Clone(groups)
}

func (b *bus) join(connID, group string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.groups[connID], group) {
		b.groups[connID] = append(b.groups[connID], group)
	}
	return slices.Clone(b.groups[connID])
}

func (b *bus) leave(connID, group string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[connID] = slices.DeleteFunc(b.groups[connID], func(g string) bool { return g == group })
	return slices.Clone(b.groups[connID])
}
