// Package utils holds small generic helpers shared across the repo.
package utils

// DefaultIfZero returns d when x is the zero value of its type.
func DefaultIfZero[T comparable](x, d T) T {
	var zero T
	if x == zero {
		return d
	}
	return x
}

func IfElse[T any](test bool, yes, no T) T {
	if test {
		return yes
	}
	return no
}
