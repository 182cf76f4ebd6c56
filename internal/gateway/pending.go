package gateway

import "sync"

// pendingTable maps in-flight request ids to their result slots.
type pendingTable struct {
	mu sync.Mutex
	m  map[string]chan *Response
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[string]chan *Response)}
}

// add registers id. It fails if id is already pending.
func (p *pendingTable) add(id string) (<-chan *Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.m[id]; ok {
		return nil, ErrDuplicateID
	}
	ch := make(chan *Response, 1)
	p.m[id] = ch
	return ch, nil
}

// resolve delivers resp to its waiter. Unknown ids return false.
func (p *pendingTable) resolve(resp *Response) bool {
	p.mu.Lock()
	ch, ok := p.m[resp.ID]
	if ok {
		delete(p.m, resp.ID)
	}
	p.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

func (p *pendingTable) remove(id string) {
	p.mu.Lock()
	delete(p.m, id)
	p.mu.Unlock()
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
