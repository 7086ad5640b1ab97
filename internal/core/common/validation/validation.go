package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
)

var (
	once     sync.Once
	validate *playgroundvalidator.Validate
)

func instance() *playgroundvalidator.Validate {
	once.Do(func() {
		validate = playgroundvalidator.New()
		// report fields by their json name
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		mustRegister("shantytown_status", oneOf("open", "closed_by_justice", "closed_by_admin", "other", "unknown", "resorbed"))
		mustRegister("census_status", oneOf("none", "scheduled", "done"))
		mustRegister("police_status", oneOf("none", "requested", "granted"))
		mustRegister("plan_topic", oneOf("health", "school", "work", "housing", "safety"))
	})
	return validate
}

func mustRegister(tag string, fn playgroundvalidator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

func oneOf(values ...string) playgroundvalidator.Func {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return func(fl playgroundvalidator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	}
}

// Struct runs the `validate` tags of v and collects every failing field.
func Struct(v interface{}) internal.FieldErrors {
	fields := internal.FieldErrors{}
	err := instance().Struct(v)
	if err == nil {
		return fields
	}

	var validationErrors playgroundvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		fields.Add("_", err.Error())
		return fields
	}
	for _, fe := range validationErrors {
		fields.Add(fieldPath(fe), message(fe))
	}
	return fields
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe playgroundvalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe playgroundvalidator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return "Ce champ est obligatoire"
	case "email":
		return "Ce courriel n'est pas valide"
	case "min", "gte":
		return fmt.Sprintf("La valeur doit être supérieure ou égale à %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("La valeur doit être inférieure ou égale à %s", fe.Param())
	case "oneof", "shantytown_status", "census_status", "police_status", "plan_topic":
		return "Cette valeur n'est pas autorisée"
	case "len":
		return fmt.Sprintf("La valeur doit comporter %s caractères", fe.Param())
	default:
		return fmt.Sprintf("Valeur invalide (%s)", fe.Tag())
	}
}

type ValidatorFunc func(interface{}) string

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

// ValidationBuilder collects business rules that struct tags cannot express.
type ValidationBuilder struct {
	fields []*FieldValidator
	errors internal.FieldErrors
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		errors: internal.FieldErrors{},
	}
}

// Struct seeds the builder with the tag errors of v so that one call reports everything.
func (v *ValidationBuilder) Struct(s interface{}) *ValidationBuilder {
	for field, messages := range Struct(s) {
		for _, m := range messages {
			v.errors.Add(field, m)
		}
	}
	return v
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{FieldName: name, Value: value}
	v.fields = append(v.fields, fv)
	return fv
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return "Ce champ est obligatoire"
			}
		case *string:
			if v == nil || strings.TrimSpace(*v) == "" {
				return "Ce champ est obligatoire"
			}
		case *time.Time:
			if v == nil {
				return "Ce champ est obligatoire"
			}
		case int64:
			if v == 0 {
				return "Ce champ est obligatoire"
			}
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) NotFuture() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		switch v := value.(type) {
		case time.Time:
			if v.After(time.Now()) {
				return "La date ne peut pas être dans le futur"
			}
		case *time.Time:
			if v != nil && v.After(time.Now()) {
				return "La date ne peut pas être dans le futur"
			}
		}
		return ""
	})
	return fv
}

// NotBefore fails when the value is a date earlier than other.
func (fv *FieldValidator) NotBefore(other *time.Time, message string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		v, ok := value.(*time.Time)
		if !ok || v == nil || other == nil {
			return ""
		}
		if v.Before(*other) {
			return message
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) Custom(validator ValidatorFunc) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

// Validate runs every rule and returns nil when no field failed.
func (v *ValidationBuilder) Validate() *internal.AppError {
	for _, field := range v.fields {
		for _, validator := range field.Validators {
			if msg := validator(field.Value); msg != "" {
				v.errors.Add(field.FieldName, msg)
			}
		}
	}
	if v.errors.HasErrors() {
		return internal.NewValidationError(v.errors)
	}
	return nil
}
