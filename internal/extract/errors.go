package extract

import "errors"

// ErrAllModelsExhausted is returned when every candidate in the fallback
// chain failed without producing a 2xx response. Callers surface this as
// service-unavailable; no partial record set is fabricated for it.
var ErrAllModelsExhausted = errors.New("all extraction models exhausted")
