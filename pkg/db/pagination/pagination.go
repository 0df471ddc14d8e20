package pagination

const (
	DefaultPerPage = 20
	MaxPerPage     = 250
)

type Pagination struct {
	Page    int `form:"page,default=1"`
	PerPage int `form:"per_page,default=20"`
}

type PageInfo struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// Normalize clamps page and page size into the accepted range.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}

func (p Pagination) Limit() int {
	return p.Normalize().PerPage
}

func BuildPageInfo(p Pagination, total int64) PageInfo {
	p = p.Normalize()
	return PageInfo{
		Page:    p.Page,
		PerPage: p.PerPage,
		Total:   total,
		HasMore: int64(p.Page*p.PerPage) < total,
	}
}
