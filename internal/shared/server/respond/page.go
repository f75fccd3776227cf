package respond

// Page is the standard list envelope.
type Page struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// NewPage assembles a list envelope. Pages is derived from total and size.
func NewPage(items any, total, page, size int) Page {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page{
		Items: items,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: pages,
	}
}
