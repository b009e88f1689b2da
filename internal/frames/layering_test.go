package frames

import (
	"strings"
	"testing"

	"framegrid/testutil"
)

func TestFramesServiceIsProtocolFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		func(p string) bool { return p == "net/http" },
		testutil.TerminalImportForbidden,
		func(p string) bool { return strings.HasPrefix(p, "framegrid/internal/infra/blob") },
	), "HTTP lives in the adapter and blob drivers are reached through internal/blob")
}
