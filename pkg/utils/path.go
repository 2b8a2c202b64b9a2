package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CreateFolder crea todas las carpetas indicadas si no existen.
func CreateFolder(folderPath ...string) error {
	for _, folder := range folderPath {
		if strings.TrimSpace(folder) == "" {
			continue
		}
		if err := os.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", folder, err)
		}
	}
	return nil
}

// InstanceStorePath returns the sqlite file that keeps the whatsmeow device
// store of one instance.
func InstanceStorePath(baseDir, instanceID string) string {
	return filepath.Join(baseDir, fmt.Sprintf("whatsapp-%s.db", keySafe(instanceID, '_')))
}

// keySafe keeps ASCII letters, digits, '-' and '_'. Anything else becomes
// repl, or is removed when repl is negative.
func keySafe(s string, repl rune) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return repl
	}, s)
}
