package channel

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by operations on an endpoint whose transport is gone.
var ErrClosed = errors.New("channel closed")

// DeliveryError reports that a message could not be sent or its reply never
// arrived. It is never fatal by itself.
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("message delivery failed (%s): %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
