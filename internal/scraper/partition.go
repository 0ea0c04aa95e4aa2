package scraper

// Partition splits items into n contiguous chunks whose sizes differ by at
// most one. The first len(items)%n chunks carry the extra item. n below 1 is
// treated as 1.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}

	size, rem := len(items)/n, len(items)%n
	chunks := make([][]T, n)

	start := 0
	for i := range chunks {
		end := start + size
		if i < rem {
			end++
		}
		chunks[i] = items[start:end:end]
		start = end
	}
	return chunks
}
