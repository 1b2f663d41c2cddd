package chatsync

type EventKind int

const (
	ChatsChanged EventKind = iota
	SingleChatChanged
	FlagsChanged
	UsersChanged
)

func (k EventKind) String() string {
	switch k {
	case ChatsChanged:
		return "chats"
	case SingleChatChanged:
		return "single_chat"
	case FlagsChanged:
		return "flags"
	case UsersChanged:
		return "users"
	default:
		return "unknown"
	}
}

// Event tells a subscriber which part of the state changed. Subscribers read
// the new state through the Store snapshots.
type Event struct {
	Kind EventKind
}

const subscriberBuffer = 64

// Subscribe registers a listener. Delivery never blocks the Store; when the
// buffer is full the event is dropped. The returned func unsubscribes and
// closes the channel.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once bool
	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if once {
			return
		}
		once = true
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) emit(kinds ...EventKind) {
	if len(kinds) == 0 {
		return
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, kind := range kinds {
		for _, ch := range s.subs {
			select {
			case ch <- Event{Kind: kind}:
			default:
			}
		}
	}
}
