package comments

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/UkralStul/comments-service/internal/domain"
)

// CreateInput - данные запроса на создание комментария.
type CreateInput struct {
	UserName      string   `json:"user_name" validate:"required,max=50"`
	Email         string   `json:"email" validate:"required,email,max=254"`
	Homepage      string   `json:"homepage" validate:"omitempty,http_url,max=200"`
	Text          string   `json:"text" validate:"required"`
	ParentID      string   `json:"parent" validate:"omitempty,max=36"`
	CaptchaKey    string   `json:"captcha_key"`
	CaptchaValue  string   `json:"captcha_value"`
	UploadKey     string   `json:"upload_key" validate:"omitempty,uuid"`
	AttachmentIDs []string `json:"attachment_ids" validate:"dive,required,max=36"`
	Files         []Upload `json:"-" validate:"-"`
}

func (in *CreateInput) normalize() {
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.TrimSpace(in.Email)
	in.Homepage = strings.TrimSpace(in.Homepage)
	in.Text = strings.TrimSpace(in.Text)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.UploadKey = strings.TrimSpace(in.UploadKey)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// в ошибках - имена полей как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput переводит ошибки validator в *domain.ValidationError.
func validateInput(v *validator.Validate, in *CreateInput) error {
	err := v.Struct(in)
	if err == nil {
		if len(in.AttachmentIDs) > 0 && in.UploadKey == "" {
			return domain.NewValidationError("upload_key", "This field is required when attachment_ids are given.")
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	vErr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if strings.HasPrefix(field, "attachment_ids[") {
			field = "attachment_ids"
		}
		vErr.Add(field, message(fe))
	}
	return vErr
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "http_url":
		return "Enter a valid URL."
	case "uuid":
		return "Must be a valid UUID."
	}
	return "Invalid value."
}
