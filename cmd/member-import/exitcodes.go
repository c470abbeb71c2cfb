package main

// cliError carries the process exit code of a run that could not start or
// continue.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

// Per-record warnings and failures never change the exit code.
const (
	exitOK         = 0
	exitInput      = 2
	exitUsage      = 3
	exitDB         = 4
	exitCheckpoint = 5
	exitReport     = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}
