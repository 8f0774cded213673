package auth

// SetPasswordHashCost swaps the bcrypt cost and returns a restore func
func SetPasswordHashCost(cost int) func() {
	prev := passwordHashCost
	passwordHashCost = cost
	return func() { passwordHashCost = prev }
}

// CountPasswordCompares counts bcrypt comparisons until restore is called
func CountPasswordCompares() (count func() int, restore func()) {
	prev := compareHash
	n := 0
	compareHash = func(hash, password []byte) error {
		n++
		return prev(hash, password)
	}
	return func() int { return n }, func() { compareHash = prev }
}
