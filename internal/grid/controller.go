// Package grid is the data-grid controller: it reconciles the per-request
// column schema sent by the dataset service with the rendering layer, drives
// server-side pagination, and sequences dtype coercion, find/replace and undo
// against the remote dataset.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"framegrid/internal/dtype"
)

// Status is the controller's load state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return "idle"
	}
}

// Snapshot is the committed grid state. Columns and Rows always come from the
// same page response. Rows are shared with the controller and must be treated
// as read-only.
type Snapshot struct {
	Columns []Column
	Rows    []Row
	Page    PageState
	Status  Status
	// Busy is true while a mutation and its reload are outstanding.
	Busy bool
}

type committed struct {
	columns []Column
	rows    []Row
	source  ColumnSource
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the sink for user-facing notifications.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notify = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPageSize sets the initial page size.
func WithPageSize(size int) Option {
	return func(c *Controller) { c.pager = NewPagination(size) }
}

// WithOnChange registers a callback run after every state transition. It is
// called without the controller lock held.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller owns the grid snapshot for one dataset and serialises every
// round trip to the Remote. Methods that touch the network block; callers on
// a UI loop run them off the loop. All methods are safe for concurrent use.
type Controller struct {
	ref      string
	remote   Remote
	notify   Notifier
	logger   Logger
	onChange func()

	mu       sync.Mutex
	pager    *Pagination
	snap     *committed
	seq      uint64 // latest issued page request
	settled  uint64 // latest page request that resolved
	mutating bool
	overlay  Overlay
}

// New constructs a controller for the dataset named by ref. No fetch happens
// until Load or Reload is called.
func New(ref string, remote Remote, opts ...Option) *Controller {
	c := &Controller{
		ref:     ref,
		remote:  remote,
		notify:  discardNotifier{},
		logger:  noopLogger{},
		pager:   NewPagination(DefaultPageSize),
		overlay: newOverlay(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ref returns the dataset reference.
func (c *Controller) Ref() string { return c.ref }

// Load fetches page with the given size and commits it on success.
func (c *Controller) Load(ctx context.Context, page, pageSize int) error {
	c.mu.Lock()
	c.pager.Set(page, pageSize)
	req, seq := c.beginLocked()
	c.mu.Unlock()
	return c.fetch(ctx, req, seq)
}

// Reload fetches the currently requested page again.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	req, seq := c.beginLocked()
	c.mu.Unlock()
	return c.fetch(ctx, req, seq)
}

// Next requests the following page. It reports false without fetching when
// the last known page is already the final one or no page has loaded yet.
func (c *Controller) Next(ctx context.Context) (bool, error) {
	return c.navigate(ctx, (*Pagination).Next)
}

// Previous requests the preceding page, with the same no-op rules as Next.
func (c *Controller) Previous(ctx context.Context) (bool, error) {
	return c.navigate(ctx, (*Pagination).Previous)
}

// GoTo requests a specific page within the known bounds.
func (c *Controller) GoTo(ctx context.Context, page int) (bool, error) {
	return c.navigate(ctx, func(p *Pagination) bool { return p.GoTo(page) })
}

// SetPageSize changes the page size and reloads from page 1.
func (c *Controller) SetPageSize(ctx context.Context, size int) (bool, error) {
	return c.navigate(ctx, func(p *Pagination) bool { return p.SetPageSize(size) })
}

func (c *Controller) navigate(ctx context.Context, move func(*Pagination) bool) (bool, error) {
	c.mu.Lock()
	if !move(c.pager) {
		c.mu.Unlock()
		return false, nil
	}
	req, seq := c.beginLocked()
	c.mu.Unlock()
	return true, c.fetch(ctx, req, seq)
}

// CanNext reports whether Next would issue a fetch.
func (c *Controller) CanNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.CanNext()
}

// CanPrevious reports whether Previous would issue a fetch.
func (c *Controller) CanPrevious() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.CanPrevious()
}

// beginLocked allocates the sequence number for a new page request.
func (c *Controller) beginLocked() (PageRequest, uint64) {
	c.seq++
	return c.pager.Request(), c.seq
}

// fetch runs one page request and commits its result unless a newer request
// was issued meanwhile, in which case the result is dropped.
func (c *Controller) fetch(ctx context.Context, req PageRequest, seq uint64) error {
	c.changed()
	c.logger.Debug("fetching page", "dataset", c.ref, "page", req.Page, "page_size", req.PageSize, "seq", seq)
	page, err := c.remote.FetchPage(ctx, c.ref, req.Page, req.PageSize)

	c.mu.Lock()
	if seq != c.seq {
		latest := c.seq
		c.mu.Unlock()
		c.logger.Debug("discarding superseded page response", "dataset", c.ref, "page", req.Page, "seq", seq, "latest", latest)
		return nil
	}
	c.settled = seq
	if err != nil {
		c.pager.Revert()
		c.mu.Unlock()
		c.logger.Warn("page load failed", "dataset", c.ref, "page", req.Page, "error", err)
		if !errors.Is(err, context.Canceled) {
			c.notify.Notify(loadFailure(err))
		}
		c.changed()
		return fmt.Errorf("load page %d: %w", req.Page, err)
	}
	previous := c.pager.State().CurrentPage
	c.snap = &committed{
		columns: Project(page.Columns),
		rows:    cloneRows(page.Rows),
		source:  page.Columns,
	}
	c.pager.Observe(page.CurrentPage, page.TotalPages)
	if page.CurrentPage != previous {
		c.overlay.Selected = make(map[int]bool)
	}
	c.mu.Unlock()
	c.logger.Debug("page committed", "dataset", c.ref, "page", page.CurrentPage, "total_pages", page.TotalPages, "rows", len(page.Rows))
	c.changed()
	return nil
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// CanMutate reports whether a mutation may be issued now. Affordances that
// trigger mutations should be disabled while it is false.
func (c *Controller) CanMutate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.mutating
}

// Apply dispatches an Intent to the matching mutation.
func (c *Controller) Apply(ctx context.Context, in Intent) error {
	switch in.Kind {
	case IntentCoerce:
		return c.ChangeColumnType(ctx, in.Column, in.Target)
	case IntentFindReplace:
		return c.FindReplace(ctx, in.Pattern)
	case IntentUndo:
		return c.Undo(ctx)
	default:
		return fmt.Errorf("grid: unsupported intent %s", in.Kind)
	}
}

// ChangeColumnType asks the service to reinterpret column as target. The
// full dtype map of the committed snapshot is sent with the one entry
// changed; the snapshot itself is not touched until the reload commits.
func (c *Controller) ChangeColumnType(ctx context.Context, column string, target dtype.Tag) error {
	c.mu.Lock()
	if c.mutating {
		c.mu.Unlock()
		return ErrMutationInFlight
	}
	if c.snap == nil {
		c.mu.Unlock()
		return ErrNoTypeMetadata
	}
	typed, ok := c.snap.source.(TypedColumns)
	if !ok {
		c.mu.Unlock()
		return ErrNoTypeMetadata
	}
	types := typed.Types()
	if _, ok := types[column]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	if !target.Valid() {
		c.mu.Unlock()
		return fmt.Errorf("grid: unknown dtype %q", target)
	}
	types[column] = target
	c.mutating = true
	c.mu.Unlock()
	defer c.endMutation()
	c.changed()

	c.logger.Debug("changing column type", "dataset", c.ref, "column", column, "dtype", target)
	if err := c.remote.CoerceColumns(ctx, c.ref, types); err != nil {
		c.logger.Warn("column type change rejected", "dataset", c.ref, "column", column, "dtype", target, "error", err)
		c.notify.Notify(coercionFailure(column, target, err))
		return err
	}
	err := c.Reload(ctx)
	c.notify.Notify(Notification{
		Level:       LevelSuccess,
		Title:       "Datatype successfully changed.",
		Description: fmt.Sprintf("%s is now %s.", column, target.Label()),
	})
	return err
}

// FindReplace sends pattern to the service unchanged; the service applies it
// across the whole dataset and records it in history.
func (c *Controller) FindReplace(ctx context.Context, pattern string) error {
	if err := c.beginMutation(); err != nil {
		return err
	}
	defer c.endMutation()
	c.changed()

	c.logger.Debug("find and replace", "dataset", c.ref)
	if err := c.remote.FindReplace(ctx, c.ref, pattern); err != nil {
		c.logger.Warn("find and replace failed", "dataset", c.ref, "error", err)
		c.notify.Notify(mutationFailure("Find and replace failed", "input_string", err))
		return err
	}
	err := c.Reload(ctx)
	c.notify.Notify(Notification{Level: LevelSuccess, Title: "Find and replace applied."})
	return err
}

// Undo reverts the most recent recorded mutation. An empty history is not an
// error: the page is reloaded and nothing is surfaced.
func (c *Controller) Undo(ctx context.Context) error {
	if err := c.beginMutation(); err != nil {
		return err
	}
	defer c.endMutation()
	c.changed()

	err := c.remote.Undo(ctx, c.ref)
	switch {
	case err == nil:
		err = c.Reload(ctx)
		c.notify.Notify(Notification{Level: LevelSuccess, Title: "Last change undone."})
		return err
	case errors.Is(err, ErrEmptyHistory):
		c.logger.Debug("undo with empty history", "dataset", c.ref)
		return c.Reload(ctx)
	default:
		c.logger.Warn("undo failed", "dataset", c.ref, "error", err)
		c.notify.Notify(mutationFailure("Undo failed", "", err))
		return err
	}
}

func (c *Controller) beginMutation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mutating {
		return ErrMutationInFlight
	}
	c.mutating = true
	return nil
}

func (c *Controller) endMutation() {
	c.mu.Lock()
	c.mutating = false
	c.mu.Unlock()
	c.changed()
}

// Snapshot returns the committed state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Page: c.pager.State(), Status: c.statusLocked(), Busy: c.mutating}
	if c.snap != nil {
		s.Columns = append([]Column(nil), c.snap.columns...)
		s.Rows = cloneRows(c.snap.rows)
	}
	return s
}

// View returns the committed state under the presentation overlay.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{Page: c.pager.State(), Sort: c.overlay.Sort, Status: c.statusLocked(), Busy: c.mutating}
	if c.snap != nil {
		v.Columns, v.Rows = c.overlay.apply(c.snap.columns, c.snap.rows)
	}
	return v
}

// Overlay returns a copy of the presentation state.
func (c *Controller) Overlay() Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlay.clone()
}

func (c *Controller) statusLocked() Status {
	switch {
	case c.settled < c.seq:
		return StatusLoading
	case c.snap != nil:
		return StatusReady
	default:
		return StatusIdle
	}
}

// SortBy orders the displayed rows by column. SortNone clears the sort.
func (c *Controller) SortBy(column string, dir SortDirection) {
	c.updateOverlay(func(o *Overlay) {
		if dir == SortNone {
			o.Sort = SortState{}
			return
		}
		o.Sort = SortState{Column: column, Direction: dir}
	})
}

// ToggleSort cycles column through ascending, descending and unsorted.
func (c *Controller) ToggleSort(column string) {
	c.updateOverlay(func(o *Overlay) {
		if o.Sort.Column != column {
			o.Sort = SortState{Column: column, Direction: SortAscending}
			return
		}
		switch o.Sort.Direction {
		case SortAscending:
			o.Sort.Direction = SortDescending
		default:
			o.Sort = SortState{}
		}
	})
}

// SetFilter keeps only rows whose column text contains needle. An empty
// needle removes the filter.
func (c *Controller) SetFilter(column, needle string) {
	c.updateOverlay(func(o *Overlay) {
		if needle == "" {
			delete(o.Filters, column)
			return
		}
		o.Filters[column] = needle
	})
}

// ClearFilters removes every filter.
func (c *Controller) ClearFilters() {
	c.updateOverlay(func(o *Overlay) { o.Filters = make(map[string]string) })
}

// SetVisible shows or hides a column.
func (c *Controller) SetVisible(column string, visible bool) {
	c.updateOverlay(func(o *Overlay) {
		if visible {
			delete(o.Hidden, column)
			return
		}
		o.Hidden[column] = true
	})
}

// ToggleSelected flips selection of the committed row at index.
func (c *Controller) ToggleSelected(index int) {
	c.updateOverlay(func(o *Overlay) {
		if o.Selected[index] {
			delete(o.Selected, index)
			return
		}
		o.Selected[index] = true
	})
}

// ClearSelection deselects every row.
func (c *Controller) ClearSelection() {
	c.updateOverlay(func(o *Overlay) { o.Selected = make(map[int]bool) })
}

func (c *Controller) updateOverlay(fn func(*Overlay)) {
	c.mu.Lock()
	fn(&c.overlay)
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
