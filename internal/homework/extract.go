package homework

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

const contentHeader = "# 作业内容"

// Extractor turns a homework document into message text.
type Extractor interface {
	Extract(path string) (string, error)
}

// PlainTextExtractor renders each non-empty line of a text file as a bullet.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed reading %s: %w", path, err)
	}
	var sb strings.Builder
	sb.WriteString(contentHeader)
	sb.WriteString("\n\n")
	lines := 0
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimLeft(line, "-*# ")
		if line == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteByte('\n')
		lines++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed reading %s: %w", path, err)
	}
	if lines == 0 {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyContent)
	}
	return sb.String(), nil
}

func defaultExtractors() map[string]Extractor {
	return map[string]Extractor{
		".txt": PlainTextExtractor{},
		".md":  PlainTextExtractor{},
	}
}
