package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTransportImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"net/http", true},
		{"database/sql", true},
		{"github.com/jackc/pgx/v5", true},
		{"modernc.org/sqlite", true},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"net/url", false},
		{"framegrid/internal/dtype", false},
	}
	for _, c := range cases {
		if got := TransportImportForbidden(c.in); got != c.want {
			t.Fatalf("TransportImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAnyOf(t *testing.T) {
	pred := AnyOf(TransportImportForbidden, TerminalImportForbidden)
	if !pred("github.com/charmbracelet/lipgloss") || !pred("net/http") || pred("fmt") {
		t.Fatalf("unexpected combined predicate results")
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n")
	writeFile(t, dir, "bad.go", "package tmp\nimport _ \"net/http\"\n")
	writeFile(t, dir, "bad_test.go", "package tmp\nimport _ \"database/sql\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "sub.go", "package sub\nimport _ \"database/sql\"\n")

	viols, err := directImportViolations(dir, TransportImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "net/http (in bad.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, TransportImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), TransportImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfDirectViolations(t *testing.T) {
	var r recordingFatal
	failIfDirectViolations(&r, "none", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure %q", r.msg)
	}
	failIfDirectViolations(&r, "grid stays pure", []string{"net/http (in x.go)"})
	if !strings.Contains(r.msg, "grid stays pure") || !strings.Contains(r.msg, "net/http") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}
