package grid

import (
	"testing"

	"framegrid/testutil"
)

func TestGridHasNoTransportOrRendering(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		testutil.TransportImportForbidden,
		testutil.TerminalImportForbidden,
	), "grid talks to the service only through Remote and leaves drawing to the UI")
}
