package coordinator

// Page size bounds for trade history
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// PageMeta describes one page of a result set
type PageMeta struct {
	PageNumber   int `json:"page_number"`
	PageSize     int `json:"page_size"`
	TotalRecords int `json:"total_records"`
	TotalPages   int `json:"total_pages"`
}

// Paginate returns the [start, end) bounds of page within total records.
// totalPages = ceil(total / size); pages past the end are empty.
func Paginate(total, page, size int) (int, int, PageMeta) {
	page, size = normalizePage(page, size)
	meta := PageMeta{
		PageNumber:   page,
		PageSize:     size,
		TotalRecords: total,
		TotalPages:   (total + size - 1) / size,
	}
	start := min((page-1)*size, total)
	end := min(start+size, total)
	return start, end, meta
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
