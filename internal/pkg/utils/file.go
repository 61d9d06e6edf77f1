package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileExists check if file exists
func FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}

var fileNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _\-.()]*$`)

// ValidateFileName checks the expected audio file naming convention:
// a plain base name, no path parts, no leading dot
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("empty file name")
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("file name '%s' contains path elements", name)
	}
	if !fileNameRegexp.MatchString(name) {
		return fmt.Errorf("wrong file name '%s'", name)
	}
	return nil
}
