package common

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadSecret resolves a flag value that may either be the secret itself or a path to a
// file holding it. When s names a regular file, the line at idx is returned. Otherwise s
// is returned unchanged, so a valid string comes back even when an error is reported.
func ReadSecret(s string, idx int) (string, error) {
	info, err := os.Stat(s)
	if err != nil || info.IsDir() {
		return s, nil
	}
	file, err := os.Open(s)
	if err != nil {
		return s, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		if line == idx {
			txt := strings.TrimSpace(scanner.Text())
			if txt == "" {
				return s, fmt.Errorf("line %d of %s is empty", idx, s)
			}
			return txt, nil
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return s, err
	}
	return s, fmt.Errorf("requested line %d not present in file: %s", idx, s)
}
