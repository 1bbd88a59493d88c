package member

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CreateInput: 멤버 생성 입력
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=128"`
	Role     Role   `json:"role" validate:"required,oneof=user admin"`
	Status   Status `json:"status" validate:"required,oneof=active resigned"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Confirm  string `json:"confirm" validate:"required,eqfield=Password"`
}

// BasicInput: 기본 정보(이름) 수정 입력
type BasicInput struct {
	Name string `json:"name" validate:"required,max=128"`
}

// AdvanceInput: 역할/상태 수정 입력
type AdvanceInput struct {
	Role   Role   `json:"role" validate:"required,oneof=user admin"`
	Status Status `json:"status" validate:"required,oneof=active resigned"`
}

// AccountInput: 계정(이메일/비밀번호) 수정 입력. Password가 비어 있으면 비밀번호는 유지된다.
type AccountInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6,max=72"`
	Confirm  string `json:"confirm,omitempty" validate:"eqfield=Password"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 에러 메시지에 JSON 필드명을 사용
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func validateInput(v *validator.Validate, op string, input any) error {
	err := v.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return newError(CodeInvalidInput, op, "invalid input", err)
	}

	return newError(CodeInvalidInput, op, describeFieldError(fieldErrs[0]), err)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		return "password and confirm do not match"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
