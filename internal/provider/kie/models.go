package kie

import "encoding/json"

// envelope wraps every Kie response.
type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *T     `json:"data"`
}

type taskCreated struct {
	TaskID string `json:"taskId"`
}

type taskRecord struct {
	TaskID     string `json:"taskId"`
	Model      string `json:"model"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

type taskResult struct {
	ResultURLs []string `json:"resultUrls"`
}

type veoRecord struct {
	TaskID       string          `json:"taskId"`
	SuccessFlag  *int            `json:"successFlag"`
	ResultURLs   json.RawMessage `json:"resultUrls"`
	Response     *veoResponse    `json:"response"`
	Info         *veoResponse    `json:"info"`
	ErrorCode    json.RawMessage `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
}

type veoResponse struct {
	ResultURLs []string `json:"resultUrls"`
}
