package setups

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the setup file at path. The result is not
// validated; call Validate before using it.
func Load(path string) (*Setup, error) {
	if path == "" {
		return nil, errors.New("setups: config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a setup. Unknown keys are rejected so typos do not silently
// fall back to zero values.
func Parse(data []byte) (*Setup, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Setup
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("setups: empty document")
		}
		return nil, fmt.Errorf("setups: %w", err)
	}
	return &s, nil
}

// Marshal renders s back to YAML.
func Marshal(s *Setup) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
