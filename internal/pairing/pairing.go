// Package pairing assigns every raffle participant a ward.
package pairing

import "math/rand/v2"

// Shuffle permutes s in place with the Durstenfeld variant of Fisher-Yates.
// intN must return a uniform value in [0, n).
func Shuffle[T any](s []T, intN func(n int) int) {
	if intN == nil {
		intN = rand.IntN
	}
	for i := len(s) - 1; i > 0; i-- {
		j := intN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// AssignWards shuffles a copy of ids and makes every element the giver for the
// element after it, the last one wrapping around to the first. The result is a
// single cycle through all ids. Two ids gift each other; fewer than two yield nil.
func AssignWards[T comparable](ids []T, intN func(n int) int) map[T]T {
	if len(ids) < 2 {
		return nil
	}

	order := make([]T, len(ids))
	copy(order, ids)
	Shuffle(order, intN)

	wards := make(map[T]T, len(order))
	for i, giver := range order {
		wards[giver] = order[(i+1)%len(order)]
	}
	return wards
}
