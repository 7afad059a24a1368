package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator; field names are reported by their json tag.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs struct tag validation and converts the first failure into a
// ValidationError.
func ValidateStruct(v any) error {
	err := GetValidator().Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return &ValidationError{Field: fe.Field(), Message: describeTag(fe)}
	}
	return &ValidationError{Message: err.Error()}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// ValidatePartial checks only the fields of v whose json names appear in present, so a
// partial update is not rejected for the required fields it leaves out.
func ValidatePartial(v any, present map[string]any) error {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		fld := rt.Field(i)
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if _, ok := present[name]; !ok || name == "" {
			continue
		}
		tag := fld.Tag.Get("validate")
		if tag == "" || tag == "-" {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Struct {
			for j := 0; j < fv.Len(); j++ {
				if err := ValidateStruct(fv.Index(j).Interface()); err != nil {
					var ve *ValidationError
					if errors.As(err, &ve) {
						ve.Field = fmt.Sprintf("%s[%d].%s", name, j, ve.Field)
					}
					return err
				}
			}
			tag = strings.TrimSuffix(strings.ReplaceAll(tag, "dive", ""), ",")
			if tag == "" {
				continue
			}
		}
		if err := GetValidator().Var(fv.Interface(), tag); err != nil {
			return varError(name, err)
		}
	}
	return nil
}

func varError(field string, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		return &ValidationError{Field: field, Message: describeTag(validationErrors[0])}
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// BindingError converts a gin binding failure into a ValidationError. Gin's validator
// reports Go field names, so EntityID becomes entityId.
func BindingError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return &ValidationError{Field: goFieldToJSON(fe.Field()), Message: describeTag(fe)}
	}
	return &ValidationError{Field: "body", Message: "must be a valid JSON object"}
}

func goFieldToJSON(name string) string {
	if name == "" {
		return name
	}
	if strings.HasSuffix(name, "ID") {
		name = strings.TrimSuffix(name, "ID") + "Id"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
