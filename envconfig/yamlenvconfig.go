package envconfig

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

type entryMap map[string]*Entry

// YamlEnvConfig implements EnvConfig with an underlying yaml file. A lock file next to it
// serializes access between processes.
type YamlEnvConfig struct {
	path     string
	fileLock *flock.Flock
}

var _ EnvConfig = (*YamlEnvConfig)(nil)

func NewYamlEnvConfig(path string) (*YamlEnvConfig, error) {
	// create path if needed
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, &FileError{Op: "create", Path: filepath.Dir(path), InnerErr: err}
	}

	return &YamlEnvConfig{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}, nil
}

func (y *YamlEnvConfig) Set(entry Entry) (string, error) {
	if err := y.lock(); err != nil {
		return "", err
	}
	defer y.fileLock.Unlock()

	// first, load entries into memory
	em, err := y.load()
	if err != nil {
		return "", err
	}

	reconcile(&entry)
	em[entry.Id] = &entry

	if err = y.save(em); err != nil {
		return "", err
	}

	return entry.Value, nil
}

func (y *YamlEnvConfig) Get(id string) (Entry, error) {
	if err := y.lock(); err != nil {
		return Entry{}, err
	}
	defer y.fileLock.Unlock()

	em, err := y.load()
	if err != nil {
		return Entry{}, err
	}

	entry, ok := em[id]
	if !ok {
		return Entry{}, &KeyError{Key: id}
	}
	entry.Id = id

	if changed := reconcile(entry); changed {
		if err := y.save(em); err != nil {
			return Entry{}, err
		}
	}

	return *entry, nil
}

func (y *YamlEnvConfig) Delete(id string, hard bool) error {
	if err := y.lock(); err != nil {
		return err
	}
	defer y.fileLock.Unlock()

	em, err := y.load()
	if err != nil {
		return err
	}

	entry, ok := em[id]
	if !ok {
		return &KeyError{Key: id}
	}

	delete(em, id)

	// finally hard delete, unset the env var
	if hard && entry.EnvVar != "" {
		os.Unsetenv(entry.EnvVar)
	}

	return y.save(em)
}

func (y *YamlEnvConfig) DeleteAll(hard bool) error {
	if err := y.lock(); err != nil {
		return err
	}
	defer y.fileLock.Unlock()

	em, err := y.load()
	if err != nil {
		return err
	}

	if hard {
		for _, entry := range em {
			if entry.EnvVar != "" {
				os.Unsetenv(entry.EnvVar)
			}
		}
	}

	if err := os.Truncate(y.path, 0); err != nil {
		return &FileError{Op: "truncate", Path: y.path, InnerErr: err}
	}

	return nil
}

func (y *YamlEnvConfig) lock() error {
	if err := y.fileLock.Lock(); err != nil {
		return &FileError{Op: "lock", Path: y.fileLock.Path(), InnerErr: err}
	}
	return nil
}

// reconcile makes the entry and its environment variable agree, the variable winning. It
// reports whether the entry's value changed.
func reconcile(entry *Entry) bool {
	if entry.EnvVar == "" {
		return false
	}

	if envValue, ok := os.LookupEnv(entry.EnvVar); ok {
		if envValue != entry.Value {
			entry.Value = envValue
			return true
		}
		return false
	}

	os.Setenv(entry.EnvVar, entry.Value)
	return false
}

func (y *YamlEnvConfig) save(em entryMap) error {
	// marshal entrymap into bytes
	emBytes, err := yaml.Marshal(em)
	if err != nil {
		return &ValidationError{Path: y.path, InnerErr: err}
	}

	// create if not exists, else overwrite entirely
	if err := os.WriteFile(y.path, emBytes, 0600); err != nil {
		return &FileError{Op: "write", Path: y.path, InnerErr: err}
	}

	return nil
}

func (y *YamlEnvConfig) load() (entryMap, error) {
	data, err := os.ReadFile(y.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entryMap{}, nil
	} else if err != nil {
		return nil, &FileError{Op: "read", Path: y.path, InnerErr: err}
	}

	em := entryMap{}
	if err = yaml.Unmarshal(data, &em); err != nil {
		return nil, &ValidationError{Path: y.path, InnerErr: err}
	}

	// an empty file unmarshals into nil
	if em == nil {
		em = entryMap{}
	}

	return em, nil
}
