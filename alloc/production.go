//go:build !memdebug

package alloc

import "fmt"

const debug = false

func misuse(kind, op string) error {
	return fmt.Errorf("%w: %s on %s", ErrUnsupported, op, kind)
}
