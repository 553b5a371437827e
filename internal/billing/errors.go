package billing

import "errors"

// ErrProviderIDImmutable is returned when a row already carries a provider subscription id.
var ErrProviderIDImmutable = errors.New("provider subscription id already set")
