package fn

import "slices"

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, len(items))
	for i, v := range items {
		out[i] = f(v)
	}
	return out
}

// Filter keeps the elements pred accepts. The result is nil when none do.
func Filter[T any](items []T, pred func(T) bool) []T {
	var out []T
	for _, v := range items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// Chunk splits items into consecutive runs of at most n. It returns nil
// when n < 1.
func Chunk[T any](items []T, n int) [][]T {
	if n < 1 {
		return nil
	}
	return slices.Collect(slices.Chunk(items, n))
}

// UniqueBy keeps the first element for each key, in order.
func UniqueBy[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]bool, len(items))
	var out []T
	for _, v := range items {
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
