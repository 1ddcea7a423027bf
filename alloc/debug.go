//go:build memdebug

package alloc

import "fmt"

// debug enables assertions on API misuse.
const debug = true

func misuse(kind, op string) error {
	panic(fmt.Sprintf("alloc: %s does not support %s", kind, op))
}
