package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,19}$`)

// Register installs the clinic validation tags on gin's binding engine.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return RegisterOn(v)
}

// RegisterOn installs the clinic validation tags on v.
func RegisterOn(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"phone":             validatePhone,
		"clinicdate":        validateDate,
		"clinictime":        validateTime,
		"appointmentstatus": validateStatus,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

func validatePhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(model.DateLayout, fl.Field().String())
	return err == nil
}

func validateTime(fl validator.FieldLevel) bool {
	_, err := time.Parse(model.TimeLayout, fl.Field().String())
	return err == nil
}

func validateStatus(fl validator.FieldLevel) bool {
	return model.AppointmentStatus(fl.Field().String()).Valid()
}

// Describe flattens validator errors into one readable message.
func Describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
