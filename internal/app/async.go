package app

// Result is the outcome of a one-shot background task
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn in its own goroutine. The returned channel receives exactly one result.
func Go[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		value, err := fn()
		ch <- Result[T]{Value: value, Err: err}
	}()
	return ch
}
