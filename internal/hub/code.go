package hub

import (
	"crypto/rand"
	"math/big"
)

const (
	DefaultCodeLength = 5
	codeCharset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func GenerateCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}
