package patient

import "github.com/go-playground/validator/v10"

// ValidateCPFField is the "cpf" validator tag used by request DTOs.
func ValidateCPFField(fl validator.FieldLevel) bool {
	return ValidCPF(fl.Field().String())
}
