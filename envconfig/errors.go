package envconfig

import "fmt"

// FileError is a failure to lock, read or write the config file itself
type FileError struct {
	Op       string
	Path     string
	InnerErr error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("config %s %s: %s", e.Op, e.Path, e.InnerErr)
}

func (e *FileError) Unwrap() error { return e.InnerErr }

// ValidationError means the file was read but does not hold a map of entries
type ValidationError struct {
	Path     string
	InnerErr error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s is not a valid entry map: %s", e.Path, e.InnerErr)
}

func (e *ValidationError) Unwrap() error { return e.InnerErr }

// KeyError means no entry has the requested id
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string { return fmt.Sprintf("config has no entry %q", e.Key) }
