package util

// Rotate moves the range [k, l) of s in front of [f, k) and returns the new
// boundary between the two blocks.
func Rotate[T any](s []T, f, k, l int) int {
	if f == k {
		return l
	}
	if k == l {
		return f
	}
	next := k

	for {
		s[f], s[next] = s[next], s[f]
		f++
		next++
		if f == k {
			k = next
		}
		if next == l {
			break
		}
	}

	ret := f
	for next = k; next != l; {
		s[f], s[next] = s[next], s[f]
		f++
		next++
		if f == k {
			k = next
		} else if next == l {
			next = k
		}
	}
	return ret
}

// StablePartition reorders s[f:l) so that every element satisfying p comes
// before every element that does not, preserving relative order inside both
// groups. It returns the index of the first element that does not satisfy p.
func StablePartition[T any](s []T, f, l int, p func(T) bool) int {
	n := l - f

	if n == 0 {
		return f
	}

	if n == 1 {
		t := f
		if p(s[f]) {
			t++
		}
		return t
	}

	m := f + (n / 2)

	return Rotate(s, StablePartition(s, f, m, p), m, StablePartition(s, m, l, p))
}
