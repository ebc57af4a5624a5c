package apps

// ArgumentError signals bad command input the flag package cannot catch,
// such as a lookup argument matching no user.
type ArgumentError struct {
	msg string
}

func NewArgumentError(msg string) *ArgumentError {
	return &ArgumentError{msg}
}

func (err *ArgumentError) Error() string {
	return err.msg
}
