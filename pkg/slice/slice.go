// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package slice compliments the standard [slices] package by providing generic
set and batching utilities used by the synchronization loops.
*/
package slice

// Map maps a slice of type T to a slice of type U using the provided transformation function.
func Map[T any, U any](input []T, transform func(T) U) []U {
	if input == nil {
		return nil
	}

	result := make([]U, len(input))
	for i, v := range input {
		result[i] = transform(v)
	}

	return result
}

// Difference returns the elements of a that are not present in b, preserving
// the order of a.
func Difference[T comparable](a []T, b []T) []T {
	exclude := make(map[T]struct{}, len(b))
	for _, v := range b {
		exclude[v] = struct{}{}
	}

	var result []T
	for _, v := range a {
		if _, found := exclude[v]; !found {
			result = append(result, v)
		}
	}

	return result
}

// Chunk splits the input into consecutive batches of at most size elements.
// The final batch may be shorter. A non-positive size yields a single batch.
func Chunk[T any](input []T, size int) [][]T {
	if len(input) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{input}
	}

	batches := make([][]T, 0, (len(input)+size-1)/size)
	for start := 0; start < len(input); start += size {
		end := start + size
		if end > len(input) {
			end = len(input)
		}
		batches = append(batches, input[start:end])
	}

	return batches
}
