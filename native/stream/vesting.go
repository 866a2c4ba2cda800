package stream

import "math/bits"

// Entitled computes the cumulative amount a payee has earned after elapsed
// seconds of a linear vesting term. The multiply runs through a 128-bit
// intermediate so a large principal times a long elapsed window cannot
// overflow. The division floors, so residue from truncation stays with the
// payer until the term completes. Elapsed time at or beyond the duration
// yields exactly the principal.
func Entitled(amount, duration, elapsed uint64) uint64 {
	if duration == 0 {
		return 0
	}
	if elapsed >= duration {
		return amount
	}
	hi, lo := bits.Mul64(elapsed, amount)
	quot, _ := bits.Div64(hi, lo, duration)
	return quot
}
