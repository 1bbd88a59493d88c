package member

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Result: 작업 결과 봉투. data 또는 error 중 하나만 채워진다.
type Result struct {
	Data  any          `json:"data"`
	Error *ResultError `json:"error"`
}

// ResultError: 결과 봉투의 에러 객체
type ResultError struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code,omitempty"`
}

// NewResult: (data, err) 쌍을 결과 봉투로 변환한다.
func NewResult(data any, err error) Result {
	if err != nil {
		return Result{Error: &ResultError{Message: MessageOf(err), Code: CodeOf(err)}}
	}
	return Result{Data: data}
}

// OK: 성공 여부
func (r Result) OK() bool { return r.Error == nil }

// Marshal: 결과 봉투를 JSON으로 직렬화한다.
func (r Result) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

// ParseResult: 직렬화된 결과 봉투를 해석한다. Data는 json.RawMessage로 남는다.
func ParseResult(data []byte) (Result, error) {
	var raw struct {
		Data  json.RawMessage `json:"data"`
		Error *ResultError    `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return Result{Data: raw.Data, Error: raw.Error}, nil
}
