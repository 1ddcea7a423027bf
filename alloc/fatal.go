package alloc

import (
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/logger"
)

var fatalHandler = defaultFatal

func defaultFatal(err error) {
	logger.Error("alloc: fatal", "err", err)
	fmt.Fprintf(os.Stderr, "memkit: %v\n", err)
	os.Exit(1)
}

// SetFatalHandler installs fn as the handler for unrecoverable allocation
// failures and returns the previous handler. A nil fn restores the default,
// which logs the error and exits the process. fn must not return; if it does,
// the allocator panics with the error.
func SetFatalHandler(fn func(err error)) func(err error) {
	prev := fatalHandler
	if fn == nil {
		fn = defaultFatal
	}
	fatalHandler = fn
	return prev
}

// fatal reports an out-of-memory condition. It never returns.
func fatal(format string, args ...any) {
	err := fmt.Errorf("%w: "+format, append([]any{ErrOutOfMemory}, args...)...)
	fatalHandler(err)
	panic(err)
}
