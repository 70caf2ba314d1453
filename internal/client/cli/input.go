package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// parseFields turns put arguments into a field map. Either a single JSON
// object is given, or any number of key=value pairs. A value that parses
// as JSON keeps its JSON type (42, true, null, "quoted", [1,2]); anything
// else is taken as a plain string.
func parseFields(args []string) (models.Fields, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no fields given")
	}

	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		var f models.Fields
		if err := json.Unmarshal([]byte(args[0]), &f); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		return f, nil
	}

	f := make(models.Fields, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		f[key] = v
	}
	return f, nil
}

func parseKey(table, id string) (models.Table, string, error) {
	t, err := models.ParseTable(table)
	if err != nil {
		return "", "", err
	}
	if id == "" {
		return "", "", fmt.Errorf("record id is required")
	}
	return t, id, nil
}
