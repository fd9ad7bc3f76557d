/*
Package envconfig keeps named settings in a file that the environment can override.

Each Entry pairs a value with the environment variable allowed to replace it. Reading or
writing an Entry reconciles the two: a set variable always wins and its value is written
back to the file, an unset variable is exported with the file's value. After any Get or Set
the process environment and the file agree, so child processes and later runs see the
same configuration.
*/
package envconfig

type Entry struct {
	Id      string `yaml:"-"`
	Value   string `yaml:"value"`
	Comment string `yaml:"comment,omitempty"`
	EnvVar  string `yaml:"env,omitempty"`
}

type EnvConfig interface {
	// Set stores entry and returns the value that ended up in the file, which is the
	// environment's if entry.EnvVar is set
	Set(entry Entry) (string, error)

	// Get returns the entry stored under id, reconciled with its environment variable. A
	// missing id is a *KeyError.
	Get(id string) (Entry, error)

	// Delete removes one entry. hard also unsets its environment variable.
	Delete(id string, hard bool) error

	// DeleteAll empties the file. hard also unsets every entry's environment variable.
	DeleteAll(hard bool) error
}
