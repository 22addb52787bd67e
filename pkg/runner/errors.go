package runner

import (
	"fmt"

	"github.com/andrej220/ansirun/pkg/lg"
)

const resultsDescriptor = "ansible results"

// UnexpectedItemCountError is returned when a run does not yield exactly one result.
// It is never retried.
type UnexpectedItemCountError struct {
	Items      []Result
	Descriptor string
}

func (e *UnexpectedItemCountError) Error() string {
	return fmt.Sprintf("unexpected number of %s retrieved: %d - %v", e.Descriptor, len(e.Items), e.Items)
}

// RunnerError is returned when the engine reports a non-zero return code.
// Stdout holds the stdout field of the module result.
type RunnerError struct {
	Module    string
	Arguments string
	LogFile   string
	RC        int
	Stdout    string
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("ansible runner with module '%s' and arguments '%s' experienced an error, review '%s' for more information",
		e.Module, e.Arguments, e.LogFile)
}

// report logs err at error level and returns it unchanged.
func report(logger lg.Logger, err error) error {
	switch e := err.(type) {
	case *RunnerError:
		logger.Error(e.Error(),
			lg.String("module", e.Module),
			lg.String("arguments", e.Arguments),
			lg.Int("rc", e.RC),
			lg.String("log_file", e.LogFile))
	case *UnexpectedItemCountError:
		logger.Error(e.Error(), lg.Int("count", len(e.Items)))
	default:
		logger.Error("ansible runner failed", lg.Err(err))
	}
	return err
}
