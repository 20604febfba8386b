package promptcache

import (
	"errors"
	"strconv"
)

// Key construction errors.
var (
	// ErrEmptyName is returned when a prompt name is missing.
	ErrEmptyName = errors.New("prompt name cannot be empty")

	// ErrVersionAndLabel is returned when both a version and a label are
	// supplied; they are mutually exclusive discriminators.
	ErrVersionAndLabel = errors.New("version and label are mutually exclusive")
)

// PromptKey builds the deterministic cache key for a prompt. A version of 0
// and an empty label mean "latest": the key is the bare name. Otherwise the
// key carries exactly one discriminator:
//
//	name           latest
//	name:v3        pinned version
//	name:staging   label
func PromptKey(name string, version int, label string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if version > 0 && label != "" {
		return "", ErrVersionAndLabel
	}
	if version > 0 {
		return name + ":v" + strconv.Itoa(version), nil
	}
	if label != "" {
		return name + ":" + label, nil
	}
	return name, nil
}

// Lock-key suffixes. Population locks serialize cold-miss fetches; refresh
// locks deduplicate background refreshes.
const (
	populateLockSuffix = ":lock"
	refreshLockSuffix  = ":refreshing"
)

func populateLockKey(key string) string { return key + populateLockSuffix }
func refreshLockKey(key string) string  { return key + refreshLockSuffix }
