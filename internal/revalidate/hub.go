package revalidate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	listenerBuffer   = 16
	resubscribeDelay = 2 * time.Second
)

// Hub: 하나의 구독을 여러 대시보드 연결로 분배한다.
type Hub struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	logger    *slog.Logger
}

// NewHub: 이벤트 허브 생성
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{listeners: make(map[chan Event]struct{}), logger: logger}
}

// Run: ctx가 끝날 때까지 store의 이벤트를 리스너에게 전달한다.
// 구독이 끊기면 resubscribeDelay 후 다시 구독한다.
func (h *Hub) Run(ctx context.Context, store *Store) error {
	defer h.closeAll()
	h.logger.Info("revalidate_hub_started")

	for {
		err := store.Subscribe(ctx, h.Broadcast)
		if ctx.Err() != nil {
			return nil
		}
		h.logger.Warn("revalidate_subscription_lost", slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
	}
}

// Listen: 새 리스너 등록. 반환된 함수로 해제한다.
func (h *Hub) Listen() (<-chan Event, func()) {
	ch := make(chan Event, listenerBuffer)

	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.listeners[ch]; ok {
				delete(h.listeners, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// Broadcast: 모든 리스너에 이벤트 전달. 버퍼가 찬 리스너는 건너뛴다.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("revalidate_listener_slow", slog.String("path", ev.Path))
		}
	}
}

// Listeners: 현재 리스너 수
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.listeners {
		delete(h.listeners, ch)
		close(ch)
	}
}
