package handler

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxEmojisLen = 256

// RegisterValidators 注册自定义校验规则
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("emojis", validateEmojis)
}

// validateEmojis 表情名列表：非空、不含逗号与空白，拼接后不超过 256 字符
func validateEmojis(fl validator.FieldLevel) bool {
	list, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	total := 0
	for i, e := range list {
		if e == "" || strings.ContainsRune(e, ',') || strings.IndexFunc(e, unicode.IsSpace) >= 0 {
			return false
		}
		total += len(e)
		if i > 0 {
			total++
		}
	}
	return total <= maxEmojisLen
}
