package devpoll

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewCommandGrid creates one command per combination of dimension values.
//
// The URL, payload and target templates use text/template syntax with the
// dimension keys as variables. Values are query-escaped before going into
// the URL and payload, and used as-is in target names. Missing template
// keys are an error.
//
// Without [WithTargetTemplate], each target is named
// "baseTarget (val1/val2)" with values ordered by sorted key.
//
// Example:
//
//	cmds, err := devpoll.NewCommandGrid("zone",
//	    devpoll.WithURLTemplate("http://device/cmd?zone={{.zone}}"),
//	    devpoll.WithDimensions(map[string][]string{
//	        "zone": {"1", "2", "3"},
//	    }),
//	    devpoll.WithGridRepeat(),
//	)
//	// 3 commands rendering into "zone (1)", "zone (2)", "zone (3)"
func NewCommandGrid(baseTarget string, opts ...GridOption) ([]Command, error) {
	if strings.TrimSpace(baseTarget) == "" {
		return nil, errors.New("base target cannot be empty")
	}

	cfg := &gridConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	urlTmpl, err := parseTemplate("url", cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}
	payloadTmpl, err := parseTemplate("payload", cfg.payloadTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid payload template: %w", err)
	}
	targetTmpl, err := parseTemplate("target", cfg.targetTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid target template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	commands := make([]Command, 0, len(combinations))
	for _, combo := range combinations {
		encoded := urlEncodeMap(combo)

		urlStr, err := executeTemplate(urlTmpl, encoded)
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}
		payload, err := executeTemplate(payloadTmpl, encoded)
		if err != nil {
			return nil, fmt.Errorf("payload template execution failed: %w", err)
		}

		target := formatTargetName(baseTarget, combo)
		if targetTmpl != nil {
			if target, err = executeTemplate(targetTmpl, combo); err != nil {
				return nil, fmt.Errorf("target template execution failed: %w", err)
			}
		}

		cmdOpts := []CommandOption{WithTarget(target), WithPayload(payload)}
		if cfg.repeat {
			cmdOpts = append(cmdOpts, WithRepeat())
		}
		if cfg.handler != nil {
			cmdOpts = append(cmdOpts, WithHandler(cfg.handler))
		}

		cmd, err := NewCommand(urlStr, cmdOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create command for '%s': %w", target, err)
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// parseTemplate returns nil for an empty template.
func parseTemplate(name, text string) (*template.Template, error) {
	if text == "" {
		return nil, nil
	}
	return template.New(name).Option("missingkey=error").Parse(text)
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)

	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	result := make([]map[string]string, 0, total)

	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

// executeTemplate renders tmpl with data; a nil template renders "".
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatTargetName creates a name in the format "Base (v1/v2)".
func formatTargetName(base string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(parts, "/"))
}
