package process

import "strings"

// Environment is the environment handed to every launched tool. It is built
// once at startup by Assemble and never modified afterwards.
//
// Entries are kept in precedence order: when a key appears more than once,
// the first entry wins.
type Environment struct {
	entries []string
}

// Assemble builds an Environment from the inherited KEY=VALUE list, usually
// os.Environ(). The list is reversed so that variables set later by the
// parent take precedence over earlier ones. Duplicates are kept.
func Assemble(inherited []string) Environment {
	entries := make([]string, len(inherited))
	for i, kv := range inherited {
		entries[len(inherited)-1-i] = kv
	}
	return Environment{entries: entries}
}

// Entries returns a copy of the entries in precedence order, duplicates
// included.
func (e Environment) Entries() []string {
	return append([]string(nil), e.entries...)
}

// Lookup returns the value a launched tool observes for key.
func (e Environment) Lookup(key string) (string, bool) {
	for _, kv := range e.entries {
		if k, v := splitEntry(kv); k == key {
			return v, true
		}
	}
	return "", false
}

// Environ resolves duplicate keys, keeping the first entry for each, and
// returns the result in precedence order. os/exec would otherwise keep the
// last duplicate. The result is never nil, so an empty Environment launches
// the tool with an empty environment rather than the worker's own.
func (e Environment) Environ() []string {
	seen := make(map[string]struct{}, len(e.entries))
	env := make([]string, 0, len(e.entries))
	for _, kv := range e.entries {
		k, _ := splitEntry(kv)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		env = append(env, kv)
	}
	return env
}

// splitEntry splits KEY=VALUE. An entry without '=' is all key. A leading '='
// belongs to the key, as in Windows' per-drive "=C:=C:\dir" variables.
func splitEntry(kv string) (string, string) {
	i := strings.Index(kv[min(1, len(kv)):], "=")
	if i < 0 {
		return kv, ""
	}
	i += min(1, len(kv))
	return kv[:i], kv[i+1:]
}
