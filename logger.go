package rendergraph

import (
	"log/slog"

	"github.com/gogpu/rendergraph/internal/rglog"
)

// SetLogger configures the logger for rendergraph and all its sub-packages.
// By default, rendergraph produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by rendergraph:
//   - [slog.LevelDebug]: per-pass and per-flush diagnostics (barrier counts, pool hits)
//   - [slog.LevelInfo]: lifecycle events (device opened, queue created, swap chain resized)
//   - [slog.LevelWarn]: non-fatal issues (include search-path misses, unknown
//     reflection names, fence waits that keep running)
//
// Example:
//
//	rendergraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	rglog.SetLogger(l)
}

// Logger returns the current logger used by rendergraph.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return rglog.Logger()
}
