package ann

import (
	"fmt"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

func errDimMismatch(want, got int) error {
	return &synerrors.ValidationError{Reason: fmt.Sprintf("vector dimension mismatch: index is %d, got %d", want, got)}
}
