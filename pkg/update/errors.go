package update

import "fmt"

// UploadRejectedError means an upload or reboot endpoint answered with
// a non-2xx status. The status code is part of the message because it
// is usually the only diagnostic the device gives.
type UploadRejectedError struct {
	Endpoint   string
	StatusCode int
}

func (e *UploadRejectedError) Error() string {
	return fmt.Sprintf("%s rejected with status %d", e.Endpoint, e.StatusCode)
}
