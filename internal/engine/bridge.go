package engine

import "sync"

type call struct {
	fn   func(Collaborator)
	done chan struct{}
}

// Bridge hands collaborator calls made on a worker goroutine to the
// goroutine running Serve. Each call blocks the worker until it has run.
type Bridge struct {
	target Collaborator
	calls  chan call
	quit   chan struct{}
	once   sync.Once
}

func NewBridge(target Collaborator) *Bridge {
	return &Bridge{target: target, calls: make(chan call), quit: make(chan struct{})}
}

// Serve runs forwarded calls until Close is called.
func (b *Bridge) Serve() {
	for {
		select {
		case c := <-b.calls:
			c.fn(b.target)
			close(c.done)
		case <-b.quit:
			return
		}
	}
}

// Close stops Serve. Calls made afterwards return without reaching the
// target: Overwrite answers false and Failed answers false.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.quit) })
}

func (b *Bridge) do(fn func(Collaborator)) {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case b.calls <- c:
		<-c.done
	case <-b.quit:
	}
}

func (b *Bridge) Progress(ev Event) {
	b.do(func(t Collaborator) { t.Progress(ev) })
}

func (b *Bridge) Overwrite(path string, isDir bool) bool {
	var ok bool
	b.do(func(t Collaborator) { ok = t.Overwrite(path, isDir) })
	return ok
}

func (b *Bridge) Failed(archive string, err error) bool {
	var ok bool
	b.do(func(t Collaborator) { ok = t.Failed(archive, err) })
	return ok
}
