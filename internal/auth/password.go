package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes 是 bcrypt 可处理的最大输入长度。
const MaxPasswordBytes = 72

// ErrPasswordTooLong 表示密码超过 MaxPasswordBytes 字节；超长密码不会被静默截断。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

var passwordCost = bcrypt.DefaultCost

// absentUserHash 在用户不存在时参与比较，使两种登录失败耗时接近。
var absentUserHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("texresume-absent-user"), passwordCost)
	return h
})

// HashPassword 生成 bcrypt 哈希。
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPasswordHash 校验密码与哈希是否匹配。hash 为空时仍执行一次比较并返回 false。
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(absentUserHash(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
