package api

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var plateFormat = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,11}$`)

func plateValidator(fl validator.FieldLevel) bool {
	return plateFormat.MatchString(fl.Field().String())
}

// RegisterValidators adds the custom binding tags used by the request DTOs.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("plate", plateValidator)
	}
}
