package dispatch

import (
	"testing"

	"go.uber.org/goleak"
)

// the gemini sdk pulls in opencensus, which starts its stats worker at init.
var ignoredGoroutines = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, ignoredGoroutines...)
}
