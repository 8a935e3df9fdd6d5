package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/internal/provider/httpclient"
	"go.uber.org/zap"
)

const (
	ProviderName   = "kie"
	defaultBaseURL = "https://api.kie.ai"

	pathCreateTask = "/api/v1/jobs/createTask"
	pathRecordInfo = "/api/v1/jobs/recordInfo"
	pathVeoCreate  = "/api/v1/veo/generate"
	pathVeoRecord  = "/api/v1/veo/record-info"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg providerdomain.AdapterConfig) (providerdomain.Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: kie api key is required", providerdomain.ErrInvalidConfig)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Adapter{
		log: log.Named("provider.kie"),
		client: httpclient.New(httpclient.Config{
			Provider:       ProviderName,
			BaseURL:        baseURL,
			Timeout:        cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
			RetryBaseDelay: cfg.RetryBaseDelay,
			Header:         http.Header{"Authorization": []string{"Bearer " + apiKey}},
			HTTPClient:     cfg.HTTPClient,
			Log:            log,
			Metrics:        cfg.Metrics,
		}),
	}, nil
}

// Adapter talks to Kie.ai, which serves image and video models through a
// generic task API and Veo through its own endpoints.
type Adapter struct {
	log    *zap.Logger
	client *httpclient.Client
}

func (a *Adapter) Provider() string {
	return ProviderName
}

func (a *Adapter) Submit(ctx context.Context, req providerdomain.SubmitRequest) (*providerdomain.SubmitResult, error) {
	if strings.TrimSpace(str(req.Parameters["prompt"])) == "" && len(imageURLs(req.Parameters)) == 0 {
		return nil, fmt.Errorf("%w: prompt is required", providerdomain.ErrInvalidParameters)
	}

	path := pathCreateTask
	var body map[string]any
	if isVeo(req.ProviderModel) {
		path = pathVeoCreate
		body = buildVeoBody(req.ProviderModel, req.Parameters, req.CallbackURL)
	} else {
		body = map[string]any{
			"model": req.ProviderModel,
			"input": buildTaskInput(req.ProviderModel, req.Parameters),
		}
		if req.CallbackURL != "" {
			body["callBackUrl"] = req.CallbackURL
		}
	}

	var resp envelope[taskCreated]
	if _, err := a.client.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, Path: path, Body: body}, &resp); err != nil {
		return nil, err
	}
	if err := envelopeError(resp.Code, resp.Msg); err != nil {
		return nil, err
	}
	if resp.Data == nil || strings.TrimSpace(resp.Data.TaskID) == "" {
		return nil, providerdomain.Permanent(ProviderName, http.StatusOK, "missing_task_id", "response has no taskId")
	}

	a.log.Info("kie task created",
		zap.String("job_id", req.JobID.String()),
		zap.String("task_id", resp.Data.TaskID),
		zap.String("model", req.ProviderModel),
	)
	return &providerdomain.SubmitResult{ExternalJobID: resp.Data.TaskID}, nil
}

func (a *Adapter) PollStatus(ctx context.Context, req providerdomain.PollRequest) (*providerdomain.JobStatus, error) {
	taskID := strings.TrimSpace(req.ExternalJobID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", providerdomain.ErrInvalidParameters)
	}
	query := url.Values{"taskId": []string{taskID}}

	if isVeo(req.ProviderModel) {
		var resp envelope[veoRecord]
		if _, err := a.client.DoJSON(ctx, httpclient.Request{Method: http.MethodGet, Path: pathVeoRecord, Query: query}, &resp); err != nil {
			return nil, err
		}
		if err := envelopeError(resp.Code, resp.Msg); err != nil {
			return nil, err
		}
		if resp.Data == nil {
			return &providerdomain.JobStatus{State: providerdomain.StateQueued}, nil
		}
		status := veoStatus(*resp.Data)
		return &status, nil
	}

	var resp envelope[taskRecord]
	if _, err := a.client.DoJSON(ctx, httpclient.Request{Method: http.MethodGet, Path: pathRecordInfo, Query: query}, &resp); err != nil {
		return nil, err
	}
	if err := envelopeError(resp.Code, resp.Msg); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return &providerdomain.JobStatus{State: providerdomain.StateQueued}, nil
	}
	status := taskStatus(*resp.Data)
	return &status, nil
}

// ParseCallback reads the body Kie posts to callBackUrl. Both the task API and
// Veo shapes are accepted.
func (a *Adapter) ParseCallback(ctx context.Context, payload []byte, headers http.Header) (*providerdomain.CallbackEvent, error) {
	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || len(bytes.TrimSpace(envelope.Data)) == 0 {
		return nil, providerdomain.ErrInvalidPayload
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Data, &fields); err != nil {
		return nil, providerdomain.ErrInvalidPayload
	}

	if _, ok := fields["state"]; ok {
		var record taskRecord
		if err := json.Unmarshal(envelope.Data, &record); err != nil || record.TaskID == "" {
			return nil, providerdomain.ErrInvalidPayload
		}
		return &providerdomain.CallbackEvent{ExternalJobID: record.TaskID, Status: taskStatus(record)}, nil
	}

	var record veoRecord
	if err := json.Unmarshal(envelope.Data, &record); err != nil || record.TaskID == "" {
		return nil, providerdomain.ErrInvalidPayload
	}
	if record.SuccessFlag == nil {
		// Veo callbacks carry the outcome in the envelope code.
		flag := 1
		if envelope.Code != http.StatusOK {
			flag = 2
			if record.ErrorMessage == "" {
				record.ErrorMessage = envelope.Msg
			}
		}
		record.SuccessFlag = &flag
	}
	return &providerdomain.CallbackEvent{ExternalJobID: record.TaskID, Status: veoStatus(record)}, nil
}

func taskStatus(record taskRecord) providerdomain.JobStatus {
	switch strings.ToLower(strings.TrimSpace(record.State)) {
	case "success":
		resultURL := firstResultURL(record.ResultJSON)
		if resultURL == "" {
			return providerdomain.JobStatus{State: providerdomain.StateFailed, ErrorDetail: "task succeeded without a result url", ErrorCode: "missing_result"}
		}
		return providerdomain.JobStatus{State: providerdomain.StateCompleted, ResultURL: resultURL}
	case "fail", "failed":
		return providerdomain.JobStatus{
			State:       providerdomain.StateFailed,
			ErrorDetail: firstNonEmpty(record.FailMsg, "generation failed"),
			ErrorCode:   record.FailCode,
		}
	case "waiting", "queuing", "queueing":
		return providerdomain.JobStatus{State: providerdomain.StateQueued}
	default:
		return providerdomain.JobStatus{State: providerdomain.StateRunning}
	}
}

func veoStatus(record veoRecord) providerdomain.JobStatus {
	flag := 0
	if record.SuccessFlag != nil {
		flag = *record.SuccessFlag
	}
	switch flag {
	case 1:
		resultURL := veoResultURL(record)
		if resultURL == "" {
			return providerdomain.JobStatus{State: providerdomain.StateFailed, ErrorDetail: "task succeeded without a result url", ErrorCode: "missing_result"}
		}
		return providerdomain.JobStatus{State: providerdomain.StateCompleted, ResultURL: resultURL}
	case 2, 3:
		return providerdomain.JobStatus{
			State:       providerdomain.StateFailed,
			ErrorDetail: firstNonEmpty(record.ErrorMessage, "generation failed"),
			ErrorCode:   strings.Trim(string(record.ErrorCode), `"`),
		}
	default:
		return providerdomain.JobStatus{State: providerdomain.StateRunning}
	}
}

func veoResultURL(record veoRecord) string {
	for _, r := range []*veoResponse{record.Response, record.Info} {
		if r != nil && len(r.ResultURLs) > 0 {
			return r.ResultURLs[0]
		}
	}
	if len(record.ResultURLs) == 0 {
		return ""
	}
	var urls []string
	if err := json.Unmarshal(record.ResultURLs, &urls); err == nil && len(urls) > 0 {
		return urls[0]
	}
	// Older records carry a JSON-encoded array inside a string.
	var legacy string
	if err := json.Unmarshal(record.ResultURLs, &legacy); err == nil {
		return firstFromList(legacy)
	}
	return ""
}

func firstResultURL(resultJSON string) string {
	if strings.TrimSpace(resultJSON) == "" {
		return ""
	}
	var result taskResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil || len(result.ResultURLs) == 0 {
		return ""
	}
	return result.ResultURLs[0]
}

func firstFromList(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(raw), &urls); err == nil && len(urls) > 0 {
			return urls[0]
		}
		return ""
	}
	return raw
}

// envelopeError converts a non-200 envelope code into a DispatchError. The
// HTTP exchange itself succeeded, so the request is not replayed whatever the
// body code says.
func envelopeError(code int, msg string) error {
	if code == http.StatusOK {
		return nil
	}
	return &providerdomain.DispatchError{
		Provider:   ProviderName,
		StatusCode: http.StatusOK,
		Code:       strconv.Itoa(code),
		Message:    firstNonEmpty(msg, "Kie API request failed"),
		Retryable:  false,
	}
}

var (
	_ providerdomain.Adapter        = (*Adapter)(nil)
	_ providerdomain.CallbackParser = (*Adapter)(nil)
)
