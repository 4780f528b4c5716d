package validation

// EchoValidator adapts Struct to echo's Validator interface so handlers can
// call c.Validate on bound request bodies.
type EchoValidator struct{}

func (EchoValidator) Validate(i interface{}) error {
	return Struct(i)
}
