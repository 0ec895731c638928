package backends

import "fmt"

// Status is the outcome of executing an operation.
// Anything other than StatusSuccess stops the execution of a graph.
type Status int

const (
	StatusSuccess Status = iota
	// StatusInvalid means the operation can't run with the given tensors.
	StatusInvalid
	// StatusNoKernel means the backend doesn't implement the operation for the given tensors.
	StatusNoKernel
	// StatusCancelled means execution was interrupted.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalid:
		return "Invalid"
	case StatusNoKernel:
		return "NoKernel"
	case StatusCancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Ok returns whether s is StatusSuccess.
func (s Status) Ok() bool { return s == StatusSuccess }
