package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	apperrors "roomsync/pkg/errors"
)

// RegisterValidators подключает правило notblank и json-имена полей в ошибках
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v.RegisterValidation("notblank", validators.NotBlank)
}

// bindError переводит ошибку binding в InvalidInput с понятным сообщением
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "Invalid request body")
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return apperrors.Newf(apperrors.ErrInvalidInput, "%s is required", fe.Field())
	case "oneof":
		return apperrors.Newf(apperrors.ErrInvalidInput, "%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return apperrors.Newf(apperrors.ErrInvalidInput, "%s is too long (max %s)", fe.Field(), fe.Param())
	case "min", "gte":
		return apperrors.Newf(apperrors.ErrInvalidInput, "%s must be at least %s", fe.Field(), fe.Param())
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "%s is invalid", fe.Field())
	}
}
