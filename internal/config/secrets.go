package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretReader читает секреты из файлов каталога (по умолчанию Docker Secrets).
type SecretReader struct {
	dir string
}

// NewSecretReader создает SecretReader для каталога dir.
func NewSecretReader(dir string) SecretReader {
	if dir == "" {
		dir = "/run/secrets"
	}
	return SecretReader{dir: dir}
}

// Read читает секрет с именем name. Пустой файл считается ошибкой.
func (r SecretReader) Read(name string) (string, error) {
	filePath := filepath.Join(r.dir, name)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}
