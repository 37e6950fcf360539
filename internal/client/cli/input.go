package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// GetFields prints prompt to w and reads name=value lines until an empty
// line or EOF. Later duplicates win.
func GetFields(reader *bufio.Reader, prompt string, w io.Writer) (map[string]string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return nil, err
	}

	fields := make(map[string]string)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			name, value, ok := strings.Cut(line, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("bad field %q, want name=value", line)
			}
			fields[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fields, nil
			}
			return nil, err
		}
		if line == "" {
			return fields, nil
		}
	}
}

// parseKeyValues splits "k=v" arguments. Arguments without '=' are errors.
func parseKeyValues(args []string) (map[string]string, error) {
	m := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad argument %q, want key=value", arg)
		}
		m[k] = v
	}
	return m, nil
}
