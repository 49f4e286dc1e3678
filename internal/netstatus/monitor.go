// Package netstatus reports whether the cloud host is reachable and
// announces online/offline transitions.
package netstatus

import (
	"slices"
	"sync"
)

// Monitor is the runtime's connectivity signal.
type Monitor interface {
	// Online reports the current connectivity.
	Online() bool

	// Subscribe calls cb on every transition until the returned function
	// is called.
	Subscribe(cb func(online bool)) func()
}

// Static is a Monitor that is always online. It is used when there is no
// remote host to watch.
type Static struct{}

// Online implements Monitor.
func (Static) Online() bool { return true }

// Subscribe implements Monitor. Nothing is ever announced.
func (Static) Subscribe(func(bool)) func() { return func() {} }

// broadcaster holds the current connectivity and its subscribers. Only
// transitions are announced.
type broadcaster struct {
	mu     sync.Mutex
	online bool
	subs   []sub
	nextID uint64
}

type sub struct {
	id uint64
	cb func(bool)
}

func (b *broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.online
}

func (b *broadcaster) Subscribe(cb func(bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, sub{id: id, cb: cb})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			b.subs = slices.DeleteFunc(b.subs, func(s sub) bool {
				return s.id == id
			})
		})
	}
}

// set records online and tells subscribers if it changed. It reports
// whether it did.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.cb(online)
	}

	return true
}

// Manual is a Monitor whose state is set by hand, e.g. from an operator
// command.
type Manual struct {
	broadcaster
}

// NewManual returns a Manual monitor starting at online.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online

	return m
}

// Set changes the connectivity, announcing it if it differs.
func (m *Manual) Set(online bool) {
	m.set(online)
}

var (
	_ Monitor = Static{}
	_ Monitor = (*Manual)(nil)
)
