// Package validation は送信前の入力検証を行う
// すべて副作用のない純粋関数で、ネットワーク呼び出しより前に失敗する
package validation

import (
	"encoding/json"
	"fmt"
	"time"

	playground "github.com/go-playground/validator/v10"
	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
	"github.com/morinonusi421/nexustrade-line/internal/model"
)

// LINE Messaging API の制約
const (
	MinRecipientLength  = 10
	MaxRecipientLength  = 100
	MaxRecipients       = 500
	MaxTextLength       = 5000
	MaxAltTextLength    = 400
	MaxTemplateNameSize = 50
	MaxBatchSize        = 500
)

var validate = newValidator()

func newValidator() *playground.Validate {
	v := playground.New()
	// 登録に失敗するのはタグ名が不正な場合のみ
	mustRegister(v, "line_id", func(fl playground.FieldLevel) bool {
		return isIdentifier(fl.Field().String())
	})
	mustRegister(v, "template_name", func(fl playground.FieldLevel) bool {
		return isIdentifier(fl.Field().String())
	})
	mustRegister(v, "no_ctrl", func(fl playground.FieldLevel) bool {
		return !hasControlChar(fl.Field().String())
	})
	return v
}

func mustRegister(v *playground.Validate, tag string, fn playground.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// ValidateRecipient は送信先ID（ユーザー・グループ・ルーム）を検証する
func ValidateRecipient(id string) error {
	return check("to", id, fmt.Sprintf("required,min=%d,max=%d,line_id", MinRecipientLength, MaxRecipientLength))
}

// ValidateRecipientCount は送信先リストの件数だけを検証する
// 個々のIDは送信時に宛先ごとに検証する
func ValidateRecipientCount(ids []string) error {
	if ids == nil {
		return apperrors.NewValidationError("to", "is required")
	}
	if len(ids) == 0 {
		return apperrors.NewValidationError("to", "must contain at least one recipient")
	}
	if len(ids) > MaxRecipients {
		return apperrors.NewValidationError("to", fmt.Sprintf("must contain at most %d recipients", MaxRecipients))
	}
	return nil
}

// ValidateRecipients は一斉送信の送信先リストを検証する
func ValidateRecipients(ids []string) error {
	if err := ValidateRecipientCount(ids); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if err := ValidateRecipient(id); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("to[%d]", i), reasonOf(err))
		}
		if _, ok := seen[id]; ok {
			return apperrors.NewValidationError(fmt.Sprintf("to[%d]", i), "is a duplicate recipient")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ValidateText はテキストメッセージ本文を検証する
func ValidateText(text string) error {
	return check("text", text, fmt.Sprintf("required,max=%d,no_ctrl", MaxTextLength))
}

// ValidateMessage は送信メッセージ全体を検証する
func ValidateMessage(msg model.Message) error {
	switch msg.Kind {
	case model.MessageKindText:
		return ValidateText(msg.Text)
	case model.MessageKindStructured:
		if msg.Contents == nil {
			return apperrors.NewValidationError("contents", "is required")
		}
		if err := check("altText", msg.AltText, fmt.Sprintf("required,max=%d", MaxAltTextLength)); err != nil {
			return err
		}
		if _, err := json.Marshal(msg.Contents); err != nil {
			return apperrors.NewValidationError("contents", "must be JSON serializable: "+err.Error())
		}
		return nil
	default:
		return apperrors.NewValidationError("type", fmt.Sprintf("unsupported message kind %q", msg.Kind))
	}
}

// ValidateTemplateName はテンプレート名の形式を検証する
func ValidateTemplateName(name string) error {
	return check("templateName", name, fmt.Sprintf("required,max=%d,template_name", MaxTemplateNameSize))
}

// ValidateTemplateData はテンプレートデータがJSONに変換できることを検証する
func ValidateTemplateData(data map[string]any) error {
	if _, err := json.Marshal(data); err != nil {
		return apperrors.NewValidationError("data", "must be JSON serializable: "+err.Error())
	}
	return nil
}

// ValidateBatchOptions は一斉送信のオプションを検証する
// size が0の場合は既定値を使う
func ValidateBatchOptions(size int, delay time.Duration) error {
	if size < 0 || size > MaxBatchSize {
		return apperrors.NewValidationError("batchSize", fmt.Sprintf("must be between 1 and %d", MaxBatchSize))
	}
	if delay < 0 {
		return apperrors.NewValidationError("batchDelay", "must not be negative")
	}
	return nil
}

func check(field, value, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	errs, ok := err.(playground.ValidationErrors)
	if !ok || len(errs) == 0 {
		return apperrors.NewValidationError(field, err.Error())
	}
	return apperrors.NewValidationError(field, reasonFor(errs[0]))
}

func reasonFor(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "line_id", "template_name":
		return "must contain only letters, digits, '_' or '-'"
	case "no_ctrl":
		return "must not contain control characters"
	}
	return "is invalid"
}

func reasonOf(err error) string {
	if ve, ok := err.(*apperrors.ValidationError); ok {
		return ve.Reason
	}
	return err.Error()
}

func isIdentifier(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// hasControlChar は 0x00-0x08, 0x0B, 0x0C, 0x0E-0x1F, 0x7F を検出する
// タブ・改行・復帰は許可する
func hasControlChar(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x08 || c == 0x0B || c == 0x0C || (c >= 0x0E && c <= 0x1F) || c == 0x7F {
			return true
		}
	}
	return false
}
