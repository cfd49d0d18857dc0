package app

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"rxmediq-tui/internal/service"

	"github.com/bytedance/sonic"
)

// LoadPresetFile reads a local JSON object that prefills the prediction
// form. Missing fields keep the form defaults; the result is not validated
// so the user can still fix it in the form.
func LoadPresetFile(path string) (service.PredictionRequest, string, error) {
	preset := service.DefaultPredictionRequest()

	rawPath := strings.TrimSpace(path)
	if rawPath == "" {
		return preset, "", fmt.Errorf("preset file path is required")
	}
	if strings.Contains(rawPath, "://") {
		return preset, "", fmt.Errorf("only local filesystem paths are supported")
	}

	resolvedPath, err := filepath.Abs(rawPath)
	if err != nil {
		return preset, "", fmt.Errorf("resolve preset path %q: %w", rawPath, err)
	}

	blob, err := os.ReadFile(resolvedPath)
	if err != nil {
		return preset, resolvedPath, fmt.Errorf("read preset file %q: %w", resolvedPath, err)
	}

	var parsed any
	if err := sonic.Unmarshal(blob, &parsed); err != nil {
		return preset, resolvedPath, fmt.Errorf("parse preset JSON %q: %w", resolvedPath, err)
	}
	fields, ok := parsed.(map[string]any)
	if !ok {
		return preset, resolvedPath, fmt.Errorf("preset JSON must be a top-level object")
	}

	if raw, ok := fields["disease"]; ok {
		disease, ok := raw.(string)
		if !ok {
			return preset, resolvedPath, fmt.Errorf("preset field disease must be a string")
		}
		preset.Disease = disease
	}
	if raw, ok := fields["age"]; ok {
		age, ok := raw.(float64)
		if !ok || age != math.Trunc(age) {
			return preset, resolvedPath, fmt.Errorf("preset field age must be a whole number")
		}
		preset.Age = int(age)
	}
	if raw, ok := fields["gender"]; ok {
		gender, ok := raw.(string)
		if !ok {
			return preset, resolvedPath, fmt.Errorf("preset field gender must be a string")
		}
		preset.Gender = service.Gender(strings.ToLower(strings.TrimSpace(gender)))
	}
	if raw, ok := fields["severity"]; ok {
		severity, ok := raw.(string)
		if !ok {
			return preset, resolvedPath, fmt.Errorf("preset field severity must be a string")
		}
		preset.Severity = service.Severity(strings.ToUpper(strings.TrimSpace(severity)))
	}
	return preset, resolvedPath, nil
}
