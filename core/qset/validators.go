package qset

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/askuphq/askup/core"
)

var (
	qsetKindTag  = "qsetkind"
	qsetKindText = "invalid qset kind"

	bloomsTagTag  = "bloomstag"
	bloomsTagText = "invalid bloom's taxonomy tag"

	selfEvalTag  = "selfeval"
	selfEvalText = "invalid self-evaluation"

	voteValueTag  = "votevalue"
	voteValueText = "vote value must be 1 or -1"
)

// InitValidators registers the qset package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(qsetKindTag, qsetKindValidation)
	core.RegisterCustomTranslation(validate, translator, qsetKindTag, qsetKindText)

	_ = validate.RegisterValidation(bloomsTagTag, bloomsTagValidation)
	core.RegisterCustomTranslation(validate, translator, bloomsTagTag, bloomsTagText)

	_ = validate.RegisterValidation(selfEvalTag, selfEvalValidation)
	core.RegisterCustomTranslation(validate, translator, selfEvalTag, selfEvalText)

	_ = validate.RegisterValidation(voteValueTag, voteValueValidation)
	core.RegisterCustomTranslation(validate, translator, voteValueTag, voteValueText)
}

// Custom Validators

func qsetKindValidation(fl validator.FieldLevel) bool {
	return Kind(fl.Field().Int()).Valid()
}

func bloomsTagValidation(fl validator.FieldLevel) bool {
	tag := BloomsTag(fl.Field().Int())
	return tag >= BloomsRemember && tag <= BloomsCreate
}

func selfEvalValidation(fl validator.FieldLevel) bool {
	ev := fl.Field().Int()
	return ev >= EvaluationWrong && ev <= EvaluationCorrect
}

func voteValueValidation(fl validator.FieldLevel) bool {
	v := fl.Field().Int()
	return v == 1 || v == -1
}
