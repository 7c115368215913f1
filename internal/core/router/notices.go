package router

import "sync"

// Notice is a user-facing toast: feature-info popups, soft fetch failures.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notices is a bounded drain-on-read buffer. Clients poll it; anything not
// collected within the window is dropped oldest-first.
type Notices struct {
	mu    sync.Mutex
	items []Notice
	limit int
}

func NewNotices(limit int) *Notices {
	if limit <= 0 {
		limit = 32
	}
	return &Notices{limit: limit}
}

func (n *Notices) Push(level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, Notice{Level: level, Message: msg})
	if len(n.items) > n.limit {
		n.items = n.items[len(n.items)-n.limit:]
	}
}

// Drain returns the pending notices and clears the buffer.
func (n *Notices) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}
