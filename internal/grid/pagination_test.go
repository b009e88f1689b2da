package grid

import "testing"

func TestPaginationBounds(t *testing.T) {
	p := NewPagination(0)
	if p.State().PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", p.State().PageSize)
	}
	if p.Next() || p.Previous() {
		t.Fatalf("navigation must be disabled before the first response")
	}

	p.Observe(1, 3)
	if p.Previous() {
		t.Fatalf("previous must be disabled on page 1")
	}
	if !p.Next() || p.Request().Page != 2 {
		t.Fatalf("expected request for page 2, got %+v", p.Request())
	}
	p.Observe(2, 3)
	if !p.Next() || p.Request().Page != 3 {
		t.Fatalf("expected request for page 3, got %+v", p.Request())
	}
	p.Observe(3, 3)
	if p.Next() {
		t.Fatalf("next must be disabled on the last page")
	}
	if p.Request().Page != 3 {
		t.Fatalf("request moved past last page: %+v", p.Request())
	}
}

func TestPaginationRevert(t *testing.T) {
	p := NewPagination(10)
	p.Observe(2, 5)
	p.Next()
	p.Revert()
	if got := p.Request().Page; got != 2 {
		t.Fatalf("expected revert to page 2, got %d", got)
	}
}

func TestPaginationRevertRestoresSize(t *testing.T) {
	p := NewPagination(10)
	p.Observe(3, 5)
	want := p.State()
	p.SetPageSize(25)
	p.Revert()
	if got := p.State(); got != want {
		t.Fatalf("revert after size change: got %+v want %+v", got, want)
	}
	p.Set(4, 50)
	p.Revert()
	if got := p.State(); got != want {
		t.Fatalf("revert after set: got %+v want %+v", got, want)
	}
}

func TestPaginationRevertBeforeFirstResponse(t *testing.T) {
	p := NewPagination(10)
	p.Set(3, 20)
	p.Revert()
	st := p.State()
	if st.RequestedPage != 1 || st.PageSize != 10 || st.TotalPages != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestPaginationGoTo(t *testing.T) {
	p := NewPagination(10)
	if !p.GoTo(4) {
		t.Fatalf("goto with unknown total should be allowed")
	}
	p.Observe(4, 4)
	if p.GoTo(5) || p.GoTo(0) || p.GoTo(4) {
		t.Fatalf("goto outside bounds or to the same page must be rejected")
	}
	if !p.GoTo(1) {
		t.Fatalf("goto 1 rejected")
	}
}

func TestPaginationSetPageSizeResets(t *testing.T) {
	p := NewPagination(10)
	p.Observe(3, 5)
	if !p.SetPageSize(25) {
		t.Fatalf("expected page size change")
	}
	st := p.State()
	if st.RequestedPage != 1 || st.PageSize != 25 || st.TotalPages != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	if p.SetPageSize(25) || p.SetPageSize(-1) {
		t.Fatalf("no-op sizes must report false")
	}
}

func TestPaginationSet(t *testing.T) {
	p := NewPagination(10)
	p.Observe(2, 4)
	p.Set(0, 10)
	st := p.State()
	if st.RequestedPage != 1 || st.TotalPages != 4 {
		t.Fatalf("unexpected state %+v", st)
	}
	p.Set(3, 20)
	st = p.State()
	if st.RequestedPage != 3 || st.PageSize != 20 || st.TotalPages != 0 {
		t.Fatalf("unexpected state after size change %+v", st)
	}
}

func TestPageStateFooter(t *testing.T) {
	p := NewPagination(10)
	if got := p.State().Footer(); got != "0 of 0 pages" {
		t.Fatalf("unexpected footer %q", got)
	}
	p.Observe(2, 7)
	if got := p.State().Footer(); got != "2 of 7 pages" {
		t.Fatalf("unexpected footer %q", got)
	}
}
