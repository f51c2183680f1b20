package record

import "errors"

// ErrImmutableColumn is returned when an Edit targets ID or Variants.
var ErrImmutableColumn = errors.New("record: column is immutable")

// ErrInextensibleColumn is returned when an Append Edit targets Series.
var ErrInextensibleColumn = errors.New("record: column does not support append")
