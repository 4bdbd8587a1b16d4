package devpoll

// Body is the raw response of a completed command.
//
// A Body is only handed to sinks on success; failures carry a nil *Body.
// Body is immutable and safe to retain after the sink returns.
type Body struct {
	raw []byte
}

// NewBody wraps b. The slice is copied.
func NewBody(b []byte) *Body {
	return &Body{raw: append([]byte(nil), b...)}
}

// Raw returns a copy of the response bytes.
func (b *Body) Raw() []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b.raw...)
}

// Text returns the response as a string.
func (b *Body) Text() string {
	if b == nil {
		return ""
	}
	return string(b.raw)
}

// Len returns the response length in bytes.
func (b *Body) Len() int {
	if b == nil {
		return 0
	}
	return len(b.raw)
}

// Field is shorthand for [ExtractField](b, name).
func (b *Body) Field(name string) (string, bool) {
	return ExtractField(b, name)
}
