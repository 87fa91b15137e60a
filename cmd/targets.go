// File: cmd/targets.go
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// normalizeTarget accepts bare hosts ("shop.example.com/p/1") and returns an
// absolute http(s) URL.
func normalizeTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return target, nil
}

// collectTargets merges URL arguments with the lines of a URL list, in
// order and without duplicates. Blank lines and lines starting with '#' are
// skipped. A list path of "-" reads stdin.
func collectTargets(args []string, listPath string, stdin io.Reader) ([]string, error) {
	raw := append([]string(nil), args...)

	if listPath != "" {
		var r io.Reader = stdin
		if listPath != "-" {
			f, err := os.Open(listPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open URL list: %w", err)
			}
			defer f.Close()
			r = f
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read URL list: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(raw))
	targets := make([]string, 0, len(raw))
	for _, r := range raw {
		t, err := normalizeTarget(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	return targets, nil
}
