package models

// Page describes offset pagination for search results. Search works over an
// already-filtered in-memory candidate slice, so offset paging is cheap and
// keeps the contract simple for CRUD collaborators.
type Page struct {
	Number int `json:"number" form:"page"`
	Size   int `json:"size" form:"pageSize"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (p Page) Normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalized()
	return (n.Number - 1) * n.Size
}

// Slice applies the page bounds to a total count, returning [lo, hi).
func (p Page) Slice(total int) (int, int) {
	n := p.Normalized()
	lo := n.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + n.Size
	if hi > total {
		hi = total
	}
	return lo, hi
}
