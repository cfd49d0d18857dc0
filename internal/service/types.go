package service

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityNormal Severity = "NORMAL"
	SeverityHigh   Severity = "HIGH"
)

const (
	MinAge = 4
	MaxAge = 60

	// Upload size hint shown next to the file picker. The service is the
	// authority on limits; the client only warns.
	MaxUploadHintBytes = 10 * 1024 * 1024
)

// PredictionRequest is built fresh from form state for every submission.
type PredictionRequest struct {
	Disease  string   `json:"disease"`
	Age      int      `json:"age"`
	Gender   Gender   `json:"gender"`
	Severity Severity `json:"severity"`
}

// DefaultPredictionRequest mirrors the initial form values.
func DefaultPredictionRequest() PredictionRequest {
	return PredictionRequest{
		Disease:  "",
		Age:      30,
		Gender:   GenderMale,
		Severity: SeverityNormal,
	}
}

// Validate enforces the field domains. It is meant for the input boundary;
// the client itself sends whatever it is given.
func (r PredictionRequest) Validate() error {
	if strings.TrimSpace(r.Disease) == "" {
		return fmt.Errorf("disease is required")
	}
	if r.Age < MinAge || r.Age > MaxAge {
		return fmt.Errorf("age must be between %d and %d", MinAge, MaxAge)
	}
	switch r.Gender {
	case GenderMale, GenderFemale:
	default:
		return fmt.Errorf("unknown gender %q", r.Gender)
	}
	switch r.Severity {
	case SeverityLow, SeverityNormal, SeverityHigh:
	default:
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	return nil
}

type PredictionResult struct {
	PredictedDrug string `json:"predicted_drug"`
}

// Plot is a chart-ready structure passed through from the service untouched.
type Plot struct {
	Data   []map[string]any `json:"data"`
	Layout map[string]any   `json:"layout"`
}

type LiveData struct {
	AgePlot      Plot `json:"age_plot"`
	SeverityPlot Plot `json:"severity_plot"`
}

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}

type RetrainOutcome struct {
	Message        string   `json:"message"`
	Metrics        Metrics  `json:"metrics"`
	DatasetSize    int      `json:"dataset_size"`
	Visualizations []string `json:"visualizations"`
}

// UploadPayload is a selected dataset file. It is reopened for every
// submission so a payload can be resubmitted after a failure.
type UploadPayload struct {
	Name string
	Size int64
	open func() (io.ReadCloser, error)
}

// NewFilePayload selects a file from disk.
func NewFilePayload(path string) (*UploadPayload, error) {
	rawPath := strings.TrimSpace(path)
	if rawPath == "" {
		return nil, fmt.Errorf("file path is required")
	}
	resolvedPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolve file path %q: %w", rawPath, err)
	}
	info, err := os.Stat(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", resolvedPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory", resolvedPath)
	}
	return &UploadPayload{
		Name: filepath.Base(resolvedPath),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(resolvedPath)
		},
	}, nil
}

// NewBytesPayload wraps in-memory content.
func NewBytesPayload(name string, data []byte) *UploadPayload {
	blob := append([]byte(nil), data...)
	return &UploadPayload{
		Name: name,
		Size: int64(len(blob)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(blob)), nil
		},
	}
}

func (p *UploadPayload) Open() (io.ReadCloser, error) {
	if p == nil || p.open == nil {
		return nil, fmt.Errorf("no file selected")
	}
	return p.open()
}

// ExceedsSizeHint reports whether the file is larger than the advertised limit.
func (p *UploadPayload) ExceedsSizeHint() bool {
	return p != nil && p.Size > MaxUploadHintBytes
}
