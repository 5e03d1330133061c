package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ntBre/newsyacht/pkg/domain"
)

// LoadSources reads the feed source list from path. One subscription per
// line, either "URL" or "URL COLOR" where COLOR is an optional display color
// for the CLI list output. Blank lines and lines starting with # are
// ignored. Duplicate URLs are dropped, first occurrence wins.
func LoadSources(path string) ([]domain.Source, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var sources []domain.Source
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		var src domain.Source
		switch len(fields) {
		case 1:
			src = domain.Source{URL: fields[0]}
		case 2:
			src = domain.Source{URL: fields[0], Color: fields[1]}
		default:
			return nil, fmt.Errorf("sources file %s line %d: unable to parse %q", path, lineNum, line)
		}

		if seen[src.URL] {
			continue
		}
		seen[src.URL] = true
		sources = append(sources, src)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	return sources, nil
}
