package grid

import (
	"errors"
	"reflect"
	"testing"

	"framegrid/internal/dtype"
)

func keysOf(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Key
	}
	return out
}

func TestProjectTypedColumns(t *testing.T) {
	src := TypedColumns{{Key: "name", Type: dtype.Object}, {Key: "age", Type: dtype.Int64}}
	cols := Project(src)
	if got := keysOf(cols); !reflect.DeepEqual(got, []string{"name", "age"}) {
		t.Fatalf("unexpected keys %v", got)
	}
	age := cols[1]
	if !age.Typed() || age.DeclaredType != dtype.Int64 {
		t.Fatalf("expected typed Int64 column, got %+v", age)
	}
	opts := age.Menu.Options()
	if len(opts) != len(dtype.All()) {
		t.Fatalf("expected %d options, got %d", len(dtype.All()), len(opts))
	}
	active := 0
	for _, o := range opts {
		if o.Active {
			active++
			if o.Tag != dtype.Int64 {
				t.Fatalf("wrong active option %s", o.Tag)
			}
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active option, got %d", active)
	}
}

func TestProjectNamedColumns(t *testing.T) {
	cols := Project(NamedColumns{"a", "b"})
	if got := keysOf(cols); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected keys %v", got)
	}
	for _, c := range cols {
		if c.Typed() {
			t.Fatalf("named column %s must not offer a type menu", c.Key)
		}
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	src := TypedColumns{{Key: "x", Type: dtype.Float64}, {Key: "y", Type: dtype.Bool}}
	a, b := Project(src), Project(src)
	if !reflect.DeepEqual(keysOf(a), keysOf(b)) {
		t.Fatalf("projection differs: %v vs %v", keysOf(a), keysOf(b))
	}
	for i := range a {
		if a[i].DeclaredType != b[i].DeclaredType {
			t.Fatalf("type mismatch at %d", i)
		}
		if !reflect.DeepEqual(a[i].Menu.Options(), b[i].Menu.Options()) {
			t.Fatalf("menu mismatch at %d", i)
		}
	}
}

func TestProjectEmpty(t *testing.T) {
	if cols := Project(nil); cols == nil || len(cols) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", cols)
	}
	if cols := Project(TypedColumns{}); len(cols) != 0 {
		t.Fatalf("expected no columns, got %d", len(cols))
	}
}

func TestProjectUnknownCurrentTag(t *testing.T) {
	cols := Project(TypedColumns{{Key: "v", Type: dtype.Tag("uint8")}})
	for _, o := range cols[0].Menu.Options() {
		if o.Active {
			t.Fatalf("no option should be active for an unknown tag, got %s", o.Tag)
		}
	}
}

func TestTypeMenuSelect(t *testing.T) {
	cols := Project(TypedColumns{{Key: "age", Type: dtype.Int64}})
	in, err := cols[0].Menu.Select(dtype.Float64)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if in.Kind != IntentCoerce || in.Column != "age" || in.Target != dtype.Float64 {
		t.Fatalf("unexpected intent %+v", in)
	}
	if _, err := cols[0].Menu.Select(dtype.Tag("decimal")); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
	var ute *unknownTagError
	if _, err := cols[0].Menu.Select("nope"); !errors.As(err, &ute) {
		t.Fatalf("expected unknownTagError, got %T", err)
	}
}
