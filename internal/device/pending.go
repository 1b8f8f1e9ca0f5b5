package device

import (
	"encoding/json"
	"sync"
	"time"
)

type response struct {
	Body json.RawMessage
	Err  error
}

type pendingCommand struct {
	ID       uint64
	Command  string
	QueuedAt time.Time
	ch       chan response
}

// pendingTable tracks in-flight correlated commands by sequence id.
// Responses are routed strictly by id; arrival order is irrelevant.
type pendingTable struct {
	mu    sync.Mutex
	items map[uint64]*pendingCommand
}

func newPendingTable() *pendingTable {
	return &pendingTable{items: make(map[uint64]*pendingCommand)}
}

func (p *pendingTable) add(id uint64, command string) *pendingCommand {
	item := &pendingCommand{
		ID:       id,
		Command:  command,
		QueuedAt: time.Now(),
		ch:       make(chan response, 1),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[id] = item
	return item
}

// resolve delivers a response to the waiter for id. Unmatched ids (late
// responses for timed-out commands, the device's own push sequence) are
// ignored.
func (p *pendingTable) resolve(id uint64, body json.RawMessage) bool {
	p.mu.Lock()
	item, ok := p.items[id]
	if ok {
		delete(p.items, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	item.ch <- response{Body: body}
	return true
}

func (p *pendingTable) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, id)
}

// failAll rejects every waiter. Called on disconnect and transport loss so
// no correlated call is left hanging.
func (p *pendingTable) failAll(err error) {
	p.mu.Lock()
	items := p.items
	p.items = make(map[uint64]*pendingCommand)
	p.mu.Unlock()
	for _, item := range items {
		item.ch <- response{Err: err}
	}
}

func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
