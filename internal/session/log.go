package session

import (
	"context"
	"sort"
	"sync"

	"github.com/vedran77/pulsechat/internal/domain"
)

const logQueueSize = 256

type logOp struct {
	messages []domain.Message
	applied  chan struct{}
}

// messageLog is the ordered message list of the active channel. Every write
// goes through queue and is applied by a single consumer goroutine, so event
// delivery, history seeding and the send fallback never interleave.
type messageLog struct {
	queue chan logOp
	done  chan struct{}
	once  sync.Once

	mu       sync.RWMutex
	messages []domain.Message
	seen     map[string]struct{}

	onAppend func(domain.Message)
}

func newMessageLog(onAppend func(domain.Message)) *messageLog {
	l := &messageLog{
		queue:    make(chan logOp, logQueueSize),
		done:     make(chan struct{}),
		seen:     make(map[string]struct{}),
		onAppend: onAppend,
	}
	go l.run()
	return l
}

func (l *messageLog) run() {
	for {
		select {
		case op := <-l.queue:
			l.apply(op.messages)
			if op.applied != nil {
				close(op.applied)
			}
		case <-l.done:
			return
		}
	}
}

func (l *messageLog) apply(messages []domain.Message) {
	for _, msg := range messages {
		if !l.insert(msg) {
			continue
		}
		if l.onAppend != nil {
			l.onAppend(msg)
		}
	}
}

// insert keeps (CreatedAt, ID) order and drops IDs already present.
func (l *messageLog) insert(msg domain.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[msg.ID]; ok {
		return false
	}
	l.seen[msg.ID] = struct{}{}

	i := sort.Search(len(l.messages), func(i int) bool {
		return domain.Less(msg, l.messages[i])
	})
	l.messages = append(l.messages, domain.Message{})
	copy(l.messages[i+1:], l.messages[i:])
	l.messages[i] = msg
	return true
}

// enqueue hands messages to the consumer. It reports false once the log is
// closed.
func (l *messageLog) enqueue(messages ...domain.Message) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	if len(messages) == 0 {
		return true
	}
	select {
	case l.queue <- logOp{messages: messages}:
		return true
	case <-l.done:
		return false
	}
}

// flush waits until everything enqueued before it has been applied.
func (l *messageLog) flush(ctx context.Context) error {
	applied := make(chan struct{})
	select {
	case l.queue <- logOp{applied: applied}:
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-applied:
		return nil
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *messageLog) snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// close stops the consumer. Pending writes are discarded.
func (l *messageLog) close() {
	l.once.Do(func() { close(l.done) })
}
