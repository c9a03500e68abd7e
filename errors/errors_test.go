package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventProcessingError_Is_And_Unwrap(t *testing.T) {
	req := require.New(t)
	cause := fmt.Errorf("socket closed")

	err := fmt.Errorf("attempt 2: %w", &EventProcessingError{
		ID:   "e1",
		Name: "payment.failed",
		Err:  cause,
	})

	req.True(stderrors.Is(err, ErrEventProcessing))
	req.True(stderrors.Is(err, cause))
	req.False(stderrors.Is(err, ErrEventDeliveryFailed))

	var processingErr *EventProcessingError
	req.True(stderrors.As(err, &processingErr))
	req.Equal("e1", processingErr.ID)
	req.Contains(err.Error(), "payment.failed")
}
