package docstore

import "sync"

// liveSub holds only the newest undelivered snapshot. Its delivery goroutine
// hands the callback the latest state in write order and never blocks writers.
type liveSub struct {
	query  Query
	fn     SnapshotFunc
	mu     sync.Mutex
	docs   []Document
	err    error
	ready  bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newLiveSub(q Query, fn SnapshotFunc) *liveSub {
	return &liveSub{
		query:  q,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (l *liveSub) offer(docs []Document, err error) {
	l.mu.Lock()
	l.docs, l.err, l.ready = docs, err, true
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *liveSub) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.signal:
		}
		l.mu.Lock()
		docs, err, ready := l.docs, l.err, l.ready
		l.docs, l.err, l.ready = nil, nil, false
		l.mu.Unlock()
		if !ready || l.stopped() {
			continue
		}
		l.fn(docs, err)
	}
}

func (l *liveSub) stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *liveSub) stop() {
	l.once.Do(func() { close(l.done) })
}
