package channels

import "fmt"

// DeliveryError wraps a transport failure while delivering an outbound
// message. The router never retries it; retry and backoff belong to the
// adapter's own transport.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
