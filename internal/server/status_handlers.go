package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ardhanurfan/member-dashboard/internal/status"
)

// ===== Status Handlers =====

const systemStatsInterval = 2 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS는 별도 미들웨어에서 처리
	},
}

// handleAggregatedStatus: 외부 백엔드, Valkey, DB 상태 집계
func (s *Server) handleAggregatedStatus(c *gin.Context) {
	if s.statusCollector == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Status collector not initialized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, s.statusCollector.GetAggregatedStatus(ctx))
}

// handleSystemStatsStream: WebSocket을 통해 시스템 리소스 사용량을 실시간 스트리밍합니다.
func (s *Server) handleSystemStatsStream(c *gin.Context) {
	if s.statusCollector == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Status collector not initialized"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	statsChan := make(chan *status.SystemStats, 1)

	go s.statusCollector.StreamSystemStats(ctx, systemStatsInterval, statsChan)

	for {
		select {
		case <-ctx.Done():
			return
		case stats, ok := <-statsChan:
			if !ok {
				return
			}
			if err := conn.WriteJSON(stats); err != nil {
				return
			}
		}
	}
}
