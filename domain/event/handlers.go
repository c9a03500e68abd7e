package event

// Handler reacts to a synchronously emitted event.
// Handlers run in registration order; one failing never stops the next.
type Handler interface {
	Handle(data any) error
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(data any) error

func (f HandlerFunc) Handle(data any) error {
	return f(data)
}
