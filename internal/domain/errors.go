package domain

import "fmt"

// ConfigError is a missing or invalid configuration. It aborts the run before
// any stage starts.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ArgumentError is an invalid command-line or API argument.
type ArgumentError struct {
	Arg string
	Msg string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Arg, e.Msg)
}

// CollectionFailure is one collector's internal error. It is logged and the
// collector's result is treated as empty.
type CollectionFailure struct {
	Source string
	Err    error
}

func (e *CollectionFailure) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Source, e.Err)
}

func (e *CollectionFailure) Unwrap() error { return e.Err }
