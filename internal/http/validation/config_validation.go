package validation

import (
	"github.com/go-playground/validator/v10"
	"homework-agent/internal/model"
	"reflect"
	"strings"
)

// New returns a validator that reports fields by their JSON names and knows
// the configuration tags.
func New() (*validator.Validate, error) {
	validate := validator.New()
	validate.RegisterTagNameFunc(jsonTagName)
	if err := RegisterConfigValidation(validate); err != nil {
		return nil, err
	}
	return validate, nil
}

// RegisterConfigValidation adds the "clock" tag: a 24-hour HH:MM time of day.
// An empty value passes; omitempty decides whether it is required.
func RegisterConfigValidation(validate *validator.Validate) error {
	return validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		_, _, err := model.ParseClock(value)
		return err == nil
	})
}

func jsonTagName(field reflect.StructField) string {
	fullJson := field.Tag.Get("json")
	if fullJson == "-" {
		return ""
	}
	jsonName := strings.SplitN(fullJson, ",", 2)[0]
	if jsonName != "" {
		return jsonName
	}
	return field.Name
}
