package ranking

import "math"

// clampMin returns v, or 1 when v is below 1.
func clampMin(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// pageOffset returns (page-1)*size, saturating instead of overflowing.
func pageOffset(page, size int) int {
	if page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}

// totalPages is ceil(total/size).
func totalPages(total, size int) int {
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

func newPagination(page, size, total int) Pagination {
	pages := totalPages(total, size)
	return Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		TotalUsers:  total,
		PageSize:    size,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
	}
}
