package service

// pageBounds defaults to the first page of ten and caps limit at 100.
func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}

func pageCount(total, limit int) int {
	return (total + limit - 1) / limit
}
