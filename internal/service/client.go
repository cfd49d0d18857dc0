package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "http://localhost:5000"
	DefaultUploadPath = "/upload"

	liveDataPath       = "/live_data"
	visualizationsPath = "/visualizations/"
	predictPath        = "/predict"
)

type visualizationsResponse struct {
	Visualizations []string `json:"visualizations"`
}

// retrainResponse accepts both the metrics object and the older flat
// accuracy field.
type retrainResponse struct {
	Message        string   `json:"message"`
	Metrics        *Metrics `json:"metrics"`
	Accuracy       *float64 `json:"accuracy"`
	DatasetSize    int      `json:"dataset_size"`
	Visualizations []string `json:"visualizations"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ClientOptions struct {
	BaseURL        string
	UploadPath     string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	Logger         *zap.Logger
}

// Client talks to the prediction/retraining service.
type Client struct {
	http           *resty.Client
	baseURL        string
	uploadPath     string
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	logger         *zap.Logger
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	uploadPath := strings.TrimSpace(opts.UploadPath)
	if uploadPath == "" {
		uploadPath = DefaultUploadPath
	}
	if !strings.HasPrefix(uploadPath, "/") {
		uploadPath = "/" + uploadPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 5 * time.Minute
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetLogger(logger.Named("resty").Sugar())

	return &Client{
		http:           httpClient,
		baseURL:        baseURL,
		uploadPath:     uploadPath,
		requestTimeout: requestTimeout,
		uploadTimeout:  uploadTimeout,
		logger:         logger,
	}
}

// BaseURL is the address relative visualization locators resolve against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) execute(ctx context.Context, op string, req *resty.Request, method, path string, out any) error {
	res, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}

	if !res.IsSuccess() {
		respErr := &ResponseError{Op: op, Status: res.StatusCode()}
		var body apiError
		if sonic.Unmarshal(res.Body(), &body) == nil {
			respErr.Message = strings.TrimSpace(body.Error)
			if respErr.Message == "" {
				respErr.Message = strings.TrimSpace(body.Message)
			}
		}
		c.logger.Warn("service returned error status",
			zap.String("op", op),
			zap.Int("status_code", res.StatusCode()),
			zap.String("body", truncate(res.String(), 512)))
		return respErr
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(res.Body(), out); err != nil {
		c.logger.Warn("unable to decode response",
			zap.String("op", op),
			zap.String("body", truncate(res.String(), 512)),
			zap.Error(err))
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req := c.http.R()
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	return c.execute(ctx, op, req, method, path, out)
}

// Health reports whether the service answers at all. Any response below
// 500 counts as reachable.
func (c *Client) Health(ctx context.Context) error {
	err := c.doJSON(ctx, "health", http.MethodGet, "/", nil, nil)
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.Status < 500 {
		return nil
	}
	return err
}

func (c *Client) LiveData(ctx context.Context) (*LiveData, error) {
	var data LiveData
	if err := c.doJSON(ctx, "live_data", http.MethodGet, liveDataPath, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Visualizations lists visualization locators as the service reports them.
// Relative paths are returned unresolved.
func (c *Client) Visualizations(ctx context.Context) ([]string, error) {
	var response visualizationsResponse
	if err := c.doJSON(ctx, "visualizations", http.MethodGet, visualizationsPath, nil, &response); err != nil {
		return nil, err
	}
	if response.Visualizations == nil {
		response.Visualizations = []string{}
	}
	return response.Visualizations, nil
}

func (c *Client) Predict(ctx context.Context, request PredictionRequest) (*PredictionResult, error) {
	var result PredictionResult
	if err := c.doJSON(ctx, "predict", http.MethodPost, predictPath, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Retrain uploads the dataset as multipart field "file" and waits for the
// service to finish retraining.
func (c *Client) Retrain(ctx context.Context, payload *UploadPayload) (*RetrainOutcome, error) {
	reader, err := payload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	var response retrainResponse
	req := c.http.R().SetFileReader("file", payload.Name, reader)
	if err := c.execute(ctx, "retrain", req, http.MethodPost, c.uploadPath, &response); err != nil {
		return nil, err
	}

	outcome := &RetrainOutcome{
		Message:        response.Message,
		DatasetSize:    response.DatasetSize,
		Visualizations: response.Visualizations,
	}
	if response.Metrics != nil {
		outcome.Metrics = *response.Metrics
	} else if response.Accuracy != nil {
		outcome.Metrics.Accuracy = *response.Accuracy
	}
	if outcome.Visualizations == nil {
		outcome.Visualizations = []string{}
	}
	return outcome, nil
}

func truncate(raw string, maxLen int) string {
	if len(raw) <= maxLen {
		return raw
	}
	return raw[:maxLen] + "..."
}
