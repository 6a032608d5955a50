package task

import "sync"

// serialLane is an unbounded FIFO drained by a single worker.
type serialLane struct {
	affinity Affinity

	mu    sync.Mutex
	queue []*Task

	wake chan struct{}
	quit chan struct{}
}

func newSerialLane(aff Affinity) *serialLane {
	return &serialLane{
		affinity: aff,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

func (l *serialLane) push(t *Task) {
	l.mu.Lock()
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *serialLane) pop() *Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return t
}

func (l *serialLane) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// loop runs tasks one by one until quit is closed and the queue is empty.
func (l *serialLane) loop(run func(*Task)) {
	for {
		if t := l.pop(); t != nil {
			run(t)
			continue
		}
		select {
		case <-l.wake:
		case <-l.quit:
			for t := l.pop(); t != nil; t = l.pop() {
				run(t)
			}
			return
		}
	}
}
