package identity

import (
	"sync"

	"cleansight/internal/domain"
)

// Listener receives the current identity, or nil when signed out
type Listener func(*domain.Identity)

// observable holds the current identity and pushes changes to listeners.
// Deliveries are serialized and happen outside the state lock, so a listener
// may call Current but must not publish.
type observable struct {
	mu        sync.Mutex
	current   *domain.Identity
	listeners map[int]Listener
	nextID    int

	deliver sync.Mutex
}

func newObservable(initial *domain.Identity) *observable {
	return &observable{current: initial, listeners: make(map[int]Listener)}
}

func (o *observable) get() *domain.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyIdentity(o.current)
}

// subscribe delivers the current value before returning, then every change
func (o *observable) subscribe(fn Listener) func() {
	o.deliver.Lock()
	defer o.deliver.Unlock()

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	current := copyIdentity(o.current)
	o.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

// publish stores next and notifies listeners when the signed-in id changed
func (o *observable) publish(next *domain.Identity) {
	o.deliver.Lock()
	defer o.deliver.Unlock()

	o.mu.Lock()
	changed := identityID(o.current) != identityID(next)
	o.current = copyIdentity(next)
	listeners := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(copyIdentity(next))
	}
}

func identityID(i *domain.Identity) string {
	if i == nil {
		return ""
	}
	return i.ID
}

func copyIdentity(i *domain.Identity) *domain.Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
