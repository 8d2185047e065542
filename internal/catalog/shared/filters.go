package shared

const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	IsActive *bool

	CategoryID *int64
}

// Bounds resolves the effective page and limit.
func (f ListFilters) Bounds() (page, limit, offset int) {
	page = f.Page
	if page <= 0 {
		page = DefaultPage
	}
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return page, limit, (page - 1) * limit
}
