package handlers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"routeledger/internal/core/types"
)

var registerOnce sync.Once

// RegisterValidations adds the ledger's binding rules to gin's validator:
//
//	decimal  a parseable decimal string; sign and range are checked by the domain
//	bizdate  a YYYY-MM-DD business date
func RegisterValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
			_, err := decimal.NewFromString(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("bizdate", func(fl validator.FieldLevel) bool {
			_, err := types.ParseDay(fl.Field().String())
			return err == nil
		})
	})
}
