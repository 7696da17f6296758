package orphan

import "errors"

// ErrNotAdmittable is returned when corroboration is asked to admit a chart
// that has no usable descriptor.
var ErrNotAdmittable = errors.New("orphan chart cannot be admitted")
