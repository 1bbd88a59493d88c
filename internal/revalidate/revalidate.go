// Package revalidate: 경로 캐시 무효화 (Valkey 세대 카운터 + pub/sub 알림)
//
// 렌더러는 자신이 캐시한 세대와 현재 세대를 비교해 stale 여부를 판단한다.
package revalidate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"
)

const (
	generationKeyPrefix = "revalidate:gen:"
	// EventsChannel: 무효화 이벤트 채널
	EventsChannel = "revalidate:events"

	opTimeout = 3 * time.Second
)

// Event: 무효화 알림
type Event struct {
	Path       string    `json:"path"`
	Generation int64     `json:"generation"`
	At         time.Time `json:"at"`
}

// Store: Valkey 기반 무효화 저장소 (member.Revalidator 구현)
type Store struct {
	client valkey.Client
	logger *slog.Logger
}

// NewStore: 무효화 저장소 생성
func NewStore(client valkey.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

func generationKey(path string) string {
	return generationKeyPrefix + normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// RevalidatePath: 세대를 올리고 이벤트를 발행한다.
// 발행 실패는 로그만 남긴다. 세대 증가가 무효화의 기준이다.
func (s *Store) RevalidatePath(ctx context.Context, path string) error {
	path = normalizePath(path)
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	gen, err := s.client.Do(opCtx, s.client.B().Incr().Key(generationKey(path)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("incr generation %s: %w", path, err)
	}

	payload, err := json.Marshal(Event{Path: path, Generation: gen, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal revalidate event: %w", err)
	}
	if err := s.client.Do(opCtx, s.client.B().Publish().Channel(EventsChannel).Message(string(payload)).Build()).Error(); err != nil {
		s.logger.WarnContext(ctx, "revalidate_publish_failed",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}

	s.logger.DebugContext(ctx, "path_revalidated",
		slog.String("path", path),
		slog.Int64("generation", gen),
	)
	return nil
}

// Generation: 경로의 현재 세대. 무효화된 적이 없으면 0.
func (s *Store) Generation(ctx context.Context, path string) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	gen, err := s.client.Do(opCtx, s.client.B().Get().Key(generationKey(path)).Build()).AsInt64()
	if valkey.IsValkeyNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get generation %s: %w", normalizePath(path), err)
	}
	return gen, nil
}

// Subscribe: ctx가 취소될 때까지 이벤트를 fn으로 전달한다. 해석할 수 없는 메시지는 건너뛴다.
func (s *Store) Subscribe(ctx context.Context, fn func(Event)) error {
	err := s.client.Receive(ctx, s.client.B().Subscribe().Channel(EventsChannel).Build(), func(msg valkey.PubSubMessage) {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Message), &ev); err != nil {
			s.logger.Warn("revalidate_event_invalid", slog.Any("error", err))
			return
		}
		fn(ev)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	return nil
}
