package config

import zxcvbn "github.com/ccojocar/zxcvbn-go"

// Tokens scoring below this zxcvbn score trigger the startup warning.
const minTokenScore = 3

// IsWeakToken reports whether the admin token is too guessable. An empty
// token switches dashboard auth off entirely and is not judged here.
func IsWeakToken(token string) bool {
	if token == "" {
		return false
	}
	return zxcvbn.PasswordStrength(token, nil).Score < minTokenScore
}
