package tokio

import "errors"

const Namespace = "tokio"

var (
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
)
