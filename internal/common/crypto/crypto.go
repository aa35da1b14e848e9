// Package crypto 密码哈希与收款账号脱敏
package crypto

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword 对密码进行哈希
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword 验证密码
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MaskPhone 手机号脱敏
func MaskPhone(phone string) string {
	if len(phone) != 11 {
		return phone
	}
	return phone[:3] + "****" + phone[7:]
}

// MaskBankCard 银行卡号脱敏
func MaskBankCard(cardNo string) string {
	if len(cardNo) < 8 {
		return cardNo
	}
	return cardNo[:4] + " **** **** " + cardNo[len(cardNo)-4:]
}

// MaskEmail 邮箱脱敏
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 2 {
		return email
	}
	return email[:2] + "***" + email[at:]
}

// MaskName 姓名只保留姓
func MaskName(name string) string {
	if utf8.RuneCountInString(name) <= 1 {
		return name
	}
	first, _ := utf8.DecodeRuneInString(name)
	return string(first) + strings.Repeat("*", utf8.RuneCountInString(name)-1)
}

// MaskAccount 按收款方式脱敏收款账号
func MaskAccount(method, account string) string {
	switch {
	case method == "bank":
		return MaskBankCard(account)
	case strings.Contains(account, "@"):
		return MaskEmail(account)
	case len(account) == 11:
		return MaskPhone(account)
	case len(account) > 4:
		return account[:2] + strings.Repeat("*", len(account)-4) + account[len(account)-2:]
	}
	return account
}
