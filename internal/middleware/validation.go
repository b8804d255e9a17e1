package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	clinicvalidator "github.com/jwalitptl/clinic-queue/pkg/validator"
)

// RegisterValidation reports JSON field names in binding errors and installs
// the clinic validation tags. Call once before serving.
func RegisterValidation() error {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	}
	return clinicvalidator.Register()
}
