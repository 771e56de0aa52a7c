package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// MaxTextBytes bounds every free-text field.
const MaxTextBytes = 64 * 1024

// ErrInvalidInput wraps every request validation failure.
var ErrInvalidInput = errors.New("invalid input")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxTextBytes
	})
	validate.RegisterStructValidation(validateContext, uncertainty.Context{})
}

// validateContext rejects enum values outside the known vocabulary. Empty
// values are filled with defaults later.
func validateContext(sl validator.StructLevel) {
	c := sl.Current().Interface().(uncertainty.Context)
	switch c.Stakes {
	case "", uncertainty.StakesLow, uncertainty.StakesMedium, uncertainty.StakesHigh:
	default:
		sl.ReportError(c.Stakes, "Stakes", "stakes", "stakes", "")
	}
	switch c.TimeSensitivity {
	case "", uncertainty.TimeLow, uncertainty.TimeNormal, uncertainty.TimeUrgent:
	default:
		sl.ReportError(c.TimeSensitivity, "TimeSensitivity", "time_sensitivity", "time_sensitivity", "")
	}
	switch c.UserExpertise {
	case "", uncertainty.ExpertiseNovice, uncertainty.ExpertiseIntermediate, uncertainty.ExpertiseExpert:
	default:
		sl.ReportError(c.UserExpertise, "UserExpertise", "user_expertise", "user_expertise", "")
	}
}

// check validates a request struct and wraps failures in ErrInvalidInput.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
