package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MaxArgFileDepth bounds how many times argument files may pull in further
// argument files.
const MaxArgFileDepth = 10

var (
	// ErrArgFileNotFound indicates an -f/--file reference names a missing file
	ErrArgFileNotFound = errors.New("argument file not found")

	// ErrArgFileMissingValue indicates a trailing -f/--file with no path
	ErrArgFileMissingValue = errors.New("flag needs an argument: -f/--file")

	// ErrArgFileTooDeep indicates argument files reference each other past MaxArgFileDepth
	ErrArgFileTooDeep = errors.New("argument files nested too deeply")
)

// TokenizeArgs reads argument-file text and returns its tokens in order.
// Everything from the first '#' on a line is a comment; what remains is
// split on whitespace.
func TokenizeArgs(r io.Reader) ([]string, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading arguments: %w", err)
	}
	return tokens, nil
}

// ReadArgFile returns the tokens of the argument file at path.
func ReadArgFile(path string) ([]string, error) {
	if !FileExists(path) {
		return nil, fmt.Errorf("%w: %s was not found", ErrArgFileNotFound, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	tokens, err := TokenizeArgs(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tokens, nil
}

// ExpandArgFiles replaces every -f/--file reference in args with the tokens
// of the referenced file, at the position of the reference. Files may
// reference further files; expansion repeats until none remain.
// Arguments after a "--" terminator are left untouched.
func ExpandArgFiles(args []string) ([]string, error) {
	current := args
	for depth := 0; ; depth++ {
		expanded, found, err := expandArgFilesOnce(current)
		if err != nil {
			return nil, err
		}
		if !found {
			return expanded, nil
		}
		if depth >= MaxArgFileDepth {
			return nil, fmt.Errorf("%w (limit %d)", ErrArgFileTooDeep, MaxArgFileDepth)
		}
		PrintDebug("Expanded argument files: %s", StyleCommand(strings.Join(expanded, " ")))
		current = expanded
	}
}

func expandArgFilesOnce(args []string) ([]string, bool, error) {
	out := make([]string, 0, len(args))
	found := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}

		path, isRef, consumesNext := argFileReference(arg)
		if !isRef {
			out = append(out, arg)
			continue
		}
		if consumesNext {
			if i+1 >= len(args) {
				return nil, false, ErrArgFileMissingValue
			}
			i++
			path = args[i]
		}

		tokens, err := ReadArgFile(path)
		if err != nil {
			return nil, false, err
		}
		out = append(out, tokens...)
		found = true
	}

	return out, found, nil
}

// argFileReference recognises -f PATH, -fPATH, -f=PATH, --file PATH and --file=PATH.
func argFileReference(arg string) (path string, isRef bool, consumesNext bool) {
	switch {
	case arg == "-f" || arg == "--file":
		return "", true, true
	case strings.HasPrefix(arg, "--file="):
		return strings.TrimPrefix(arg, "--file="), true, false
	case strings.HasPrefix(arg, "-f") && !strings.HasPrefix(arg, "--"):
		return strings.TrimPrefix(arg[2:], "="), true, false
	}
	return "", false, false
}
