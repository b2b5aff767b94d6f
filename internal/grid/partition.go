package grid

// Partition splits items into contiguous, size-balanced batches of roughly
// target elements.
//
// The batch count starts at len(items)/target and grows by one when the
// division leaves a remainder; every batch then takes len(items)/count
// elements, so the final batch may be shorter. Concatenating the batches
// always yields items.
func Partition[T any](items []T, target int) [][]T {
	n := len(items)
	if n == 0 {
		return nil
	}
	if target <= 0 {
		target = n
	}
	count := max(1, n/target)
	if n%target != 0 && target < n {
		count++
	}
	step := n / count

	batches := make([][]T, 0, count+1)
	for i := 0; i < n; i += step {
		end := min(i+step, n)
		batches = append(batches, items[i:end:end])
	}
	return batches
}

// Chunks yields successive n-sized slices of items.
func Chunks[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = len(items)
	}
	var out [][]T
	for i := 0; i < len(items); i += n {
		end := min(i+n, len(items))
		out = append(out, items[i:end:end])
	}
	return out
}
