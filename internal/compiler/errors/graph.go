package errors

// Graph error codes (GRA200-299)
const (
	// ErrDuplicateName indicates two nodes sharing one name
	ErrDuplicateName ErrorCode = "GRA201"
	// ErrDanglingEdge indicates an edge whose endpoint does not exist
	ErrDanglingEdge ErrorCode = "GRA202"
	// ErrCycle indicates a cycle among stages
	ErrCycle ErrorCode = "GRA203"
	// ErrIncompatibleEdge indicates a consumer that cannot accept the producer's output
	ErrIncompatibleEdge ErrorCode = "GRA204"
	// ErrInvalidJoinAnchor indicates a fan-in anchor that names no stage
	ErrInvalidJoinAnchor ErrorCode = "GRA205"
	// ErrInvalidEntry indicates an entry designation that names no stage
	ErrInvalidEntry ErrorCode = "GRA206"
	// ErrInvalidNode indicates a node missing attributes its variant requires
	ErrInvalidNode ErrorCode = "GRA207"
)
