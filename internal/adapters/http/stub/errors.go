package stub

import "errors"

// Sentinel kinds for stub errors.
var (
	ErrDataset = errors.New("invalid dataset")
)
