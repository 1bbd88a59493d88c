package backend

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// Error: 외부 백엔드가 돌려준 non-2xx 응답
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// IsClientError: 4xx 응답 여부
func IsClientError(err error) bool {
	var be *Error
	return stdErrors.As(err, &be) && be.Status >= 400 && be.Status < 500
}

// errorBody: GoTrue/PostgREST 에러 응답의 공통 필드
type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
}

// decodeError: 응답 본문에서 메시지를 꺼낸다. msg → message → error_description → error 순.
func decodeError(status int, body []byte) *Error {
	out := &Error{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}

	for _, candidate := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
		if strings.TrimSpace(candidate) != "" {
			out.Message = candidate
			break
		}
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}

	switch {
	case eb.ErrorCode != "":
		out.Code = eb.ErrorCode
	case eb.Code != nil:
		out.Code = fmt.Sprint(eb.Code)
	}
	return out
}
