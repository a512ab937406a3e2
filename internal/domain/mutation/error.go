package mutation

import "errors"

var (
	ErrUnknownKind = errors.New("unknown mutation kind")
	ErrDuplicateID = errors.New("queue item id already exists")
	ErrNotFound    = errors.New("queue item not found")
)
