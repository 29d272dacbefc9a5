package store

// paginate applies the limit+1 convention: the store fetches one row past the
// page size; when it arrives, the last row of the page becomes the next
// marker and the overflow row is stripped.
func paginate[T any](items []T, limit int, id func(T) string) ([]T, string, error) {
	if len(items) <= limit {
		return items, "", nil
	}
	page := items[:limit]
	return page, id(page[len(page)-1]), nil
}
