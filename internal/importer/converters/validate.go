package converters

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/scorepipe/internal/importer/failure"
)

var validate = newValidator() //nolint:gochecknoglobals // validator caches struct metadata

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals data into dst and checks its validate tags. Any problem
// is an InvalidScore describing every violation.
func decode(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return failure.Invalidf("Invalid record: %s", describeJSON(err))
	}
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return failure.Invalidf("Invalid record: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return failure.Invalidf("Invalid record: %s.", strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	got := fe.Value()
	if rv := reflect.ValueOf(got); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			got = "null"
		} else {
			got = rv.Elem().Interface()
		}
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (received %v)", fe.Field(), fe.Param(), got)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s (received %v)", fe.Field(), fe.Param(), got)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s (received %v)", fe.Field(), fe.Param(), got)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (received %v)", fe.Field(), fe.Param(), got)
	default:
		return fmt.Sprintf("%s failed %s (received %v)", fe.Field(), fe.Tag(), got)
	}
}

func describeJSON(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s must be %s (received %s)", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return err.Error()
}
