package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid объединяет ошибки разбора и проверки запросов.
var ErrInvalid = errors.New("invalid request")

// MaxBodyBytes ограничивает размер тела запроса, в том числе после распаковки.
const MaxBodyBytes int64 = 1 << 20

// ErrBodyTooLarge возвращается, если тело запроса больше MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// Error описывает ошибку проверки запроса с подробностями по полям.
type Error struct {
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("eventdate", func(fl validator.FieldLevel) bool {
		return IsValidEventDate(fl.Field().String())
	})
	return v
}

// DecodeJSONBody читает JSON-тело запроса в dest и проверяет его по тегам validate.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		}
		return &Error{Message: "invalid request body", Fields: map[string]string{"body": err.Error()}}
	}
	return Struct(dest)
}

// Struct проверяет структуру по тегам validate.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// Var проверяет одно значение по правилу tag.
func Var(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return &Error{Message: "validation failed", Fields: map[string]string{field: validationMessage(errs[0])}}
		}
		return &Error{Message: "validation failed", Fields: map[string]string{field: err.Error()}}
	}
	return nil
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		fields := make(map[string]string, len(errs))
		for _, fe := range errs {
			fields[fe.Field()] = validationMessage(fe)
		}
		return &Error{Message: "validation failed", Fields: fields}
	}
	return &Error{Message: "validation failed: " + err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "eventdate":
		return "must be a date in YYYY-MM-DD format"
	}
	return "is invalid"
}

// ParseQueryInt читает целочисленный параметр запроса в пределах [lo, hi].
func ParseQueryInt(r *http.Request, key string, defaultVal, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Message: "invalid query parameter", Fields: map[string]string{key: "must be numeric"}}
	}
	if value < lo || value > hi {
		return 0, &Error{Message: "invalid query parameter", Fields: map[string]string{key: fmt.Sprintf("must be within [%d, %d]", lo, hi)}}
	}
	return value, nil
}

func parseInt(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &Error{Message: "invalid time", Fields: map[string]string{"time": "must be RFC 3339 or unix milliseconds"}}
	}
	return v, nil
}
