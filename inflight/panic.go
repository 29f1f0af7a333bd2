/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package inflight

import (
	"bytes"
	"fmt"
	"runtime/debug"
)

// PanicError carries a value recovered from a panicking call together with the stack trace,
// so that it can be delivered to all waiters as an ordinary error.
type PanicError struct {
	Value interface{}
	Stack []byte
}

// NewPanicError wraps a recovered value. It must be called from the deferred function that recovered it.
func NewPanicError(v interface{}) *PanicError {
	stack := debug.Stack()
	// The first line ("goroutine N [running]:") is misleading once the error reaches other goroutines.
	if line := bytes.IndexByte(stack, '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &PanicError{Value: v, Stack: stack}
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic in in-flight call: %v\n\n%s", p.Value, p.Stack)
}

// Unwrap returns the recovered value if it is an error.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}
