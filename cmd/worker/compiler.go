package main

import (
	"os"

	"github.com/bazelbuild/rules_go/go/runfiles"
)

// resolveCompiler returns path if it names an existing file. Otherwise it
// tries path as a runfiles location. If neither works path is returned as
// given, and launching it reports the problem.
func resolveCompiler(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	rf, err := runfiles.New()
	if err != nil {
		return path
	}
	loc, err := rf.Rlocation(path)
	if err != nil {
		return path
	}
	if _, err := os.Stat(loc); err != nil {
		return path
	}
	return loc
}
