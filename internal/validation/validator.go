package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/phone"
)

// New returns a validator with the msisdn tag registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// msisdn accepts anything the normalizer can turn into a 254XXXXXXXXX number.
	_ = v.RegisterValidation("msisdn", func(fl validatorv10.FieldLevel) bool {
		_, err := phone.Parse(fl.Field().String())
		return err == nil
	})

	return v
}
