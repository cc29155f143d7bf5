package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/raphaelgruber/perfsight/internal/report"
	"gopkg.in/yaml.v3"
)

// loadTestContext merges a YAML or JSON context file with key=value pairs.
// Pairs win over file entries; numeric and boolean values keep their type.
func loadTestContext(file string, pairs []string) (report.TestContext, error) {
	ctx := report.TestContext{}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read context file: %w", err)
		}
		var parsed map[string]any
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse context file %s: %w", file, err)
		}
		for k, v := range parsed {
			ctx[k] = v
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid context %q: expected key=value", pair)
		}
		ctx[key] = scalar(strings.TrimSpace(value))
	}

	if len(ctx) == 0 {
		return nil, nil
	}
	return ctx, nil
}

func scalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
