package validation

import (
	"regexp"
	"strings"
)

var (
	methodTokenRe  = regexp.MustCompile(`^pm_[A-Za-z0-9_]{3,64}$`)
	discountCodeRe = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
)

// IsValidPaymentMethod проверяет способ оплаты: токен шлюза вида pm_… или номер карты.
func IsValidPaymentMethod(method string) bool {
	method = strings.TrimSpace(method)
	if strings.HasPrefix(method, "pm_") {
		return methodTokenRe.MatchString(method)
	}
	return IsValidCardNumber(method)
}

// NormalizeDiscountCode приводит промокод к каноническому виду.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidDiscountCode проверяет формат промокода после нормализации.
func IsValidDiscountCode(code string) bool {
	return discountCodeRe.MatchString(NormalizeDiscountCode(code))
}
