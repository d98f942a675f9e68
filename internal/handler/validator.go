package handler

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"cloudconnect-server/internal/model"
)

var registerOnce sync.Once

// RegisterValidators 在 gin 的校验引擎上注册自定义规则
// os_tag: 操作系统标签只能是 Windows / Linux / MacOS
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		err = v.RegisterValidation("os_tag", func(fl validator.FieldLevel) bool {
			return model.IsValidOS(fl.Field().String())
		})
	})
	return err
}
