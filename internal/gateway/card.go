package gateway

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrCardNumberInvalid 卡号非法（长度或校验位不通过）
	ErrCardNumberInvalid = errors.New("card number invalid")
	// ErrCardCVVInvalid CVV 非法
	ErrCardCVVInvalid = errors.New("card cvv invalid")
	// ErrCardExpired 卡已过期或有效期非法
	ErrCardExpired = errors.New("card expired")
)

// Card 支付卡信息，只在预校验阶段短暂持有
type Card struct {
	Number   string `json:"number"`
	CVV      string `json:"cvv"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// Validate 卡信息预校验：Luhn 校验、CVV 位数、有效期
func (c *Card) Validate(now time.Time) error {
	number := strings.ReplaceAll(strings.TrimSpace(c.Number), " ", "")
	if len(number) < 12 || len(number) > 19 || !luhnValid(number) {
		return ErrCardNumberInvalid
	}
	cvv := strings.TrimSpace(c.CVV)
	if len(cvv) < 3 || len(cvv) > 4 || !digitsOnly(cvv) {
		return ErrCardCVVInvalid
	}
	if c.ExpMonth < 1 || c.ExpMonth > 12 {
		return ErrCardExpired
	}
	year := c.ExpYear
	if year < 100 {
		year += 2000
	}
	// 有效期截至到当月最后一刻
	endOfMonth := time.Date(year, time.Month(c.ExpMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if !now.Before(endOfMonth) {
		return ErrCardExpired
	}
	return nil
}

// LastFour 返回卡号后四位
func (c *Card) LastFour() string {
	number := strings.ReplaceAll(strings.TrimSpace(c.Number), " ", "")
	if len(number) < 4 {
		return ""
	}
	return number[len(number)-4:]
}

// Wipe 清除敏感字段，卡号与 CVV 不落库不落日志
func (c *Card) Wipe() {
	c.Number = ""
	c.CVV = ""
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		ch := number[i]
		if ch < '0' || ch > '9' {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
