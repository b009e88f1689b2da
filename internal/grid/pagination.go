package grid

import "fmt"

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 10

// PageState is the client's view of pagination. CurrentPage and TotalPages
// are zero until the first response arrives.
type PageState struct {
	RequestedPage int `json:"requested_page"`
	PageSize      int `json:"page_size"`
	CurrentPage   int `json:"current_page"`
	TotalPages    int `json:"total_pages"`
}

// Footer renders the position as "<current> of <total> pages".
func (s PageState) Footer() string {
	return fmt.Sprintf("%d of %d pages", s.CurrentPage, s.TotalPages)
}

// PageRequest is the fetch a pagination change calls for.
type PageRequest struct {
	Page     int
	PageSize int
}

// Pagination tracks the requested page and the last server-reported
// position. It is not safe for concurrent use; the Controller serialises
// access.
type Pagination struct {
	requested int
	size      int
	current   int
	total     int
	// settled is the state as of the last committed response.
	settled PageState
}

// NewPagination starts at page 1. Non-positive sizes fall back to DefaultPageSize.
func NewPagination(pageSize int) *Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Pagination{requested: 1, size: pageSize}
	p.settled = p.State()
	return p
}

// State returns the current pagination state.
func (p *Pagination) State() PageState {
	return PageState{RequestedPage: p.requested, PageSize: p.size, CurrentPage: p.current, TotalPages: p.total}
}

// Request returns the fetch for the current requested page.
func (p *Pagination) Request() PageRequest {
	return PageRequest{Page: p.requested, PageSize: p.size}
}

// CanNext reports whether Next would move. Unknown totals disable it.
func (p *Pagination) CanNext() bool {
	return p.total > 0 && p.requested < p.total
}

// CanPrevious reports whether Previous would move.
func (p *Pagination) CanPrevious() bool {
	return p.total > 0 && p.requested > 1
}

// Next advances the requested page. It reports false, leaving state
// untouched, when the move would pass the last page.
func (p *Pagination) Next() bool {
	if !p.CanNext() {
		return false
	}
	p.requested++
	return true
}

// Previous moves the requested page back. It reports false at page 1 or
// before the first response.
func (p *Pagination) Previous() bool {
	if !p.CanPrevious() {
		return false
	}
	p.requested--
	return true
}

// GoTo sets the requested page. It reports whether the request changed.
// Pages below 1 are rejected; pages past a known total are rejected.
func (p *Pagination) GoTo(page int) bool {
	if page < 1 || page == p.requested {
		return false
	}
	if p.total > 0 && page > p.total {
		return false
	}
	p.requested = page
	return true
}

// SetPageSize changes the page size and returns to page 1. It reports
// whether anything changed.
func (p *Pagination) SetPageSize(size int) bool {
	if size <= 0 || size == p.size {
		return false
	}
	p.size = size
	p.requested = 1
	p.current, p.total = 0, 0
	return true
}

// Set requests an explicit page and size, as used by Controller.Load. Values
// below 1 are clamped to 1 and to the current size respectively.
func (p *Pagination) Set(page, size int) {
	if page < 1 {
		page = 1
	}
	if size > 0 && size != p.size {
		p.size = size
		p.current, p.total = 0, 0
	}
	p.requested = page
}

// Revert restores the state of the last committed response after a failed
// fetch, undoing any page or size change made since.
func (p *Pagination) Revert() {
	p.requested = p.settled.RequestedPage
	p.size = p.settled.PageSize
	p.current = p.settled.CurrentPage
	p.total = p.settled.TotalPages
}

// Observe records the server-reported position from a committed response.
func (p *Pagination) Observe(current, total int) {
	p.current = current
	p.total = total
	if current > 0 {
		p.requested = current
	}
	p.settled = p.State()
}
