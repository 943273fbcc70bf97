package mathx

import "golang.org/x/exp/constraints"

// CeilDiv returns ceil(a/b) for positive integers; 0 when b <= 0.
func CeilDiv[T constraints.Integer](a, b T) T {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Chunks calls fn for consecutive [off, off+n) windows of total covering
// at most size elements each. It stops at the first error.
func Chunks(total, size int, fn func(i, off, n int) error) error {
	if size <= 0 {
		size = total
	}
	for i, off := 0, 0; off < total; i++ {
		n := Min(size, total-off)
		if err := fn(i, off, n); err != nil {
			return err
		}
		off += n
	}
	return nil
}
