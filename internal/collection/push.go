package collection

// Push is the handle of a background cloud write started by Save. Callers are
// not expected to wait on it; it exists for logging and tests.
type Push struct {
	key        string
	dispatched bool
	done       chan struct{}
	err        error
}

func newPush(key string) *Push {
	return &Push{key: key, dispatched: true, done: make(chan struct{})}
}

// donePush is returned when no cloud write was scheduled.
func donePush(key string) *Push {
	p := &Push{key: key, done: make(chan struct{})}
	close(p.done)
	return p
}

func (p *Push) finish(err error) {
	p.err = err
	close(p.done)
}

func (p *Push) Key() string { return p.key }

// Dispatched reports whether a cloud write was started at all.
func (p *Push) Dispatched() bool { return p.dispatched }

// Done is closed once the cloud write has finished.
func (p *Push) Done() <-chan struct{} { return p.done }

// Wait blocks until the cloud write finished and returns its result.
func (p *Push) Wait() error {
	<-p.done
	return p.err
}
