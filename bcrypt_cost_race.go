//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

func init() {
	// race builds are slow enough that full cost hashing trips test timeouts
	passwordHashCost = bcrypt.MinCost
}
