package runtime

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ParseEnvVars reads key=value pairs from an io.Reader. It understands
// # comments, matching single or double quotes, and an "export " prefix.
func ParseEnvVars(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		env[key] = val
	}
	return env, scanner.Err()
}

// LoadEnvFile reads an env file. A missing file yields an empty map.
func LoadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseEnvVars(f)
}

// Env looks variables up in an overlay map first, then in the process
// environment. The overlay comes from --env-file.
type Env struct {
	Overlay map[string]string
}

// Get returns the value for key, or "" when unset.
func (e Env) Get(key string) string {
	if v, ok := e.Overlay[key]; ok {
		return v
	}
	return os.Getenv(key)
}
