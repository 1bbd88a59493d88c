package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ===== Revalidation Handlers =====

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleRevalidateGeneration: 경로의 현재 무효화 세대. path가 없으면 멤버 목록 경로.
func (s *Server) handleRevalidateGeneration(c *gin.Context) {
	if s.revalidation == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Revalidation store not initialized"})
		return
	}

	path := c.Query("path")
	if path == "" {
		path = s.members.MembersPath()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	generation, err := s.revalidation.Generation(ctx, path)
	if err != nil {
		s.logger.Error("revalidate_generation_failed", slog.String("path", path), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Revalidation store unavailable"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, RevalidateResponse{Path: path, Generation: generation})
}

// handleRevalidateStream: WebSocket으로 무효화 이벤트를 전달합니다.
func (s *Server) handleRevalidateStream(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Revalidation hub not initialized"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	events, release := s.events.Listen()
	defer release()

	// 클라이언트 종료 감지용 read pump
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
