package pagination

// Page addresses one fixed-size page, zero-based.
type Page struct {
	Number int `form:"page"`
	Size   int `form:"page_size,default=50" validate:"gte=1,lte=5000"`
}

func (p Page) Offset() int {
	if p.Number <= 0 || p.Size <= 0 {
		return 0
	}
	return p.Number * p.Size
}

func (p Page) Next() Page {
	return Page{Number: p.Number + 1, Size: p.Size}
}

// Walk requests pages in order until fetch reports a short page, then stops.
// A page that comes back exactly full is always followed by one more request, so a
// table whose size is an exact multiple of the page size ends on an explicit empty page.
func Walk[T any](size int, fetch func(Page) ([]T, error)) ([]T, error) {
	var out []T
	page := Page{Size: size}
	for {
		rows, err := fetch(page)
		out = append(out, rows...)
		if err != nil {
			return out, err
		}
		if len(rows) < size {
			return out, nil
		}
		page = page.Next()
	}
}
