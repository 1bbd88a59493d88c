package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ardhanurfan/member-dashboard/internal/auth"
	"github.com/ardhanurfan/member-dashboard/internal/member"
	"github.com/ardhanurfan/member-dashboard/internal/middleware"
)

// ===== Member Handlers =====

const memberRequestTimeout = 15 * time.Second

// handleCreateMember: 계정 + member + permission 생성
func (s *Server) handleCreateMember(c *gin.Context) {
	var input member.CreateInput
	if !s.bindMemberInput(c, &input) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), memberRequestTimeout)
	defer cancel()

	created, err := s.members.CreateMember(ctx, callerFrom(c), input)
	if err != nil {
		s.writeResult(c, nil, err)
		return
	}
	s.writeResult(c, created, nil)
}

// handleUpdateMemberBasic: 이름 수정
func (s *Server) handleUpdateMemberBasic(c *gin.Context) {
	var input member.BasicInput
	if !s.bindMemberInput(c, &input) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), memberRequestTimeout)
	defer cancel()

	err := s.members.UpdateMemberBasicByID(ctx, callerFrom(c), c.Param("id"), input)
	s.writeResult(c, nil, err)
}

// handleUpdateMemberAdvance: 역할/상태 수정
func (s *Server) handleUpdateMemberAdvance(c *gin.Context) {
	var req AdvanceRequest
	if !s.bindMemberInput(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), memberRequestTimeout)
	defer cancel()

	err := s.members.UpdateMemberAdvanceByID(ctx, callerFrom(c), c.Param("id"), req.PermissionID, member.AdvanceInput{
		Role:   req.Role,
		Status: req.Status,
	})
	s.writeResult(c, nil, err)
}

// handleUpdateMemberAccount: 이메일/비밀번호 수정
func (s *Server) handleUpdateMemberAccount(c *gin.Context) {
	var input member.AccountInput
	if !s.bindMemberInput(c, &input) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), memberRequestTimeout)
	defer cancel()

	err := s.members.UpdateMemberAccountByID(ctx, callerFrom(c), c.Param("id"), input)
	s.writeResult(c, nil, err)
}

// handleDeleteMember: 계정 및 member 삭제
func (s *Server) handleDeleteMember(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), memberRequestTimeout)
	defer cancel()

	err := s.members.DeleteMemberByID(ctx, callerFrom(c), c.Param("id"))
	s.writeResult(c, nil, err)
}

// handleReadMembers: permission + member 목록. 응답은 캐시하지 않는다.
func (s *Server) handleReadMembers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), memberRequestTimeout)
	defer cancel()

	rows, err := s.members.ReadMembers(ctx, callerFrom(c))
	c.Header("Cache-Control", "no-store")
	if err != nil {
		s.writeResult(c, nil, err)
		return
	}
	s.writeResult(c, rows, nil)
}

// bindMemberInput: 요청 본문 해석. 실패하면 INVALID_INPUT 결과를 쓰고 false.
func (s *Server) bindMemberInput(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.logger.Debug("member_request_malformed",
			middleware.LogAttr(c),
			slog.Any("error", err),
		)
		s.writeResult(c, nil, &member.Error{Code: member.CodeInvalidInput, Message: "invalid request body"})
		return false
	}
	return true
}

// writeResult: {data, error} 봉투로 응답한다.
func (s *Server) writeResult(c *gin.Context, data any, err error) {
	body, marshalErr := member.NewResult(data, err).Marshal()
	if marshalErr != nil {
		s.logger.Error("member_result_marshal_failed", slog.Any("error", marshalErr))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.Data(statusForError(err), "application/json; charset=utf-8", body)
}

func statusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch member.CodeOf(err) {
	case member.CodeInvalidInput:
		return http.StatusBadRequest
	case member.CodeUnauthenticated:
		return http.StatusUnauthorized
	case member.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func callerFrom(c *gin.Context) *member.Caller {
	return auth.SessionFromContext(c).Caller()
}
