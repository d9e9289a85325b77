package selector

// CircularIndex maps any integer position onto 0..n-1, wrapping in both
// directions (-1 -> n-1, n -> 0). n must be positive.
func CircularIndex(i, n int) int {
	return ((i % n) + n) % n
}

// Window returns the positions of the centered window of half-width h
// around m on a cycle of length n, in ascending offset order.
func Window(m, h, n int) []int {
	out := make([]int, 0, 2*h+1)
	for off := -h; off <= h; off++ {
		out = append(out, CircularIndex(m+off, n))
	}
	return out
}
