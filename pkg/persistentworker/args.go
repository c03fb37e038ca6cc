package persistentworker

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ArgfilePrefix marks a positional argument as a reference to an argfile.
const ArgfilePrefix = "@"

// FindArgfile inspects the positional arguments left over after flag parsing.
// It returns the argfile path if exactly one @path argument is present, or ""
// if there are no positional arguments. Any other positional argument is an
// error, as is more than one argfile.
func FindArgfile(args []string) (string, error) {
	path := ""
	for _, arg := range args {
		if !strings.HasPrefix(arg, ArgfilePrefix) {
			return "", fmt.Errorf("unknown argument %q", arg)
		}
		if path != "" {
			return "", fmt.Errorf("multiple argfiles not supported")
		}
		path = strings.TrimPrefix(arg, ArgfilePrefix)
		if path == "" {
			return "", fmt.Errorf("argfile reference %q has no path", arg)
		}
	}
	return path, nil
}

// ReadArgfile reads arguments from a file, one per line.
// Lines are taken verbatim apart from their line ending, so empty arguments
// and arguments starting with # survive.
func ReadArgfile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read argfile %s: %w", path, err)
	}
	defer file.Close()

	var args []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		args = append(args, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read argfile %s: %w", path, err)
	}

	return args, nil
}
