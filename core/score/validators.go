package score

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/alama/core"
)

var (
	slotTag  = "slot"
	slotText = "{0} is not a valid exam"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(slotTag, slotValidation)
	core.RegisterCustomTranslation(validate, translator, slotTag, slotText)
}

// slotValidation checks that the provided map key is one of Slots
func slotValidation(fl validator.FieldLevel) bool {
	return Slot(fl.Field().String()).Valid()
}
