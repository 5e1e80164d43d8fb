package pagination

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

type Pagination struct {
	Limit int `form:"limit,default=50"`
}

// Normalize clamps Limit into [1, MaxLimit], using DefaultLimit when unset.
func (p Pagination) Normalize() Pagination {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}
