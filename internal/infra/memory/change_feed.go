package memory

import (
	"context"
	"sync"

	"wavelink-service/internal/domain"
)

// ChangeFeed is an in-process implementation of app.ChangeFeed. Events are
// kept per game for polling and broadcast to subscribers of that game.
type ChangeFeed struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	events      []domain.ChangeEvent
	subscribers map[chan domain.ChangeEvent]struct{}
}

func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{topics: make(map[string]*topic)}
}

func (f *ChangeFeed) topicLocked(gameID string) *topic {
	t, ok := f.topics[gameID]
	if !ok {
		t = &topic{subscribers: make(map[chan domain.ChangeEvent]struct{})}
		f.topics[gameID] = t
	}
	return t
}

func (f *ChangeFeed) Append(_ context.Context, ev domain.ChangeEvent) (domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.topicLocked(ev.GameID)
	ev.Seq = uint64(len(t.events)) + 1
	t.events = append(t.events, ev)
	for ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest buffered event, polling fills the gap.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return ev, nil
}

func (f *ChangeFeed) Subscribe(_ context.Context, gameID string) (<-chan domain.ChangeEvent, func(), error) {
	ch := make(chan domain.ChangeEvent, 16)

	f.mu.Lock()
	t := f.topicLocked(gameID)
	t.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

func (f *ChangeFeed) Since(_ context.Context, gameID string, cursor uint64) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.topics[gameID]
	if !ok || cursor >= uint64(len(t.events)) {
		return []domain.ChangeEvent{}, nil
	}
	out := make([]domain.ChangeEvent, len(t.events)-int(cursor))
	copy(out, t.events[cursor:])
	return out, nil
}

func (f *ChangeFeed) Head(_ context.Context, gameID string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.topics[gameID]; ok {
		return uint64(len(t.events)), nil
	}
	return 0, nil
}
