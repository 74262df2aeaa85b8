package handlers

import (
	"fmt"
	"sync"

	"cafe_backend/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the domain enum tags used in request DTOs to gin's validator.
// It must run before the first request is bound.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		tags := map[string]validator.Func{
			"order_mode":     validOrderMode,
			"payment_method": validPaymentMethod,
			"order_status":   validOrderStatus,
			"item_type":      validItemType,
		}
		for tag, fn := range tags {
			if err = v.RegisterValidation(tag, fn); err != nil {
				return
			}
		}
	})
	return err
}

func validOrderMode(fl validator.FieldLevel) bool {
	switch models.OrderMode(fl.Field().String()) {
	case models.OrderModeNormal, models.OrderModeSubscription:
		return true
	}
	return false
}

func validPaymentMethod(fl validator.FieldLevel) bool {
	switch models.PaymentMethod(fl.Field().String()) {
	case models.PaymentUPI, models.PaymentCard, models.PaymentCash, models.PaymentSubscription:
		return true
	}
	return false
}

// Legacy aliases (DONE, SOLD) are accepted here and normalised by the service.
func validOrderStatus(fl validator.FieldLevel) bool {
	_, ok := models.ParseOrderStatus(fl.Field().String())
	return ok
}

func validItemType(fl validator.FieldLevel) bool {
	return models.ItemType(fl.Field().String()).Valid()
}
