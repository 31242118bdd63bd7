package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Codes of the envelope, the HTTP status is always 200 for a routed path
const (
	CodeSuccess    = 0
	CodeFailed     = 1
	CodeBadRequest = 2
)

// HTTPResponse is the envelope of every status server reply
type HTTPResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// ParseHTTPResponse decodes an envelope, the data part is decoded into expectData
func ParseHTTPResponse(j []byte, expectData interface{}) (*HTTPResponse, error) {
	result := &HTTPResponse{Data: expectData}
	if err := json.Unmarshal(j, result); err != nil {
		return nil, fmt.Errorf("invalid status server response: %w", err)
	}
	return result, nil
}

// Err returns the failure carried by the envelope, nil on CodeSuccess
func (r *HTTPResponse) Err() error {
	if r.Code == CodeSuccess {
		return nil
	}
	return &ErrResponse{Code: r.Code, Message: r.Message}
}

type ErrResponse struct {
	Code    int
	Message string
}

func (e *ErrResponse) Error() string {
	if len(e.Message) == 0 {
		return fmt.Sprintf("status server replied code %d", e.Code)
	}
	return fmt.Sprintf("status server replied code %d: %s", e.Code, e.Message)
}

func writeResponse(w http.ResponseWriter, code int, msg string, data interface{}) {
	respB, err := json.Marshal(&HTTPResponse{Code: code, Message: msg, Data: data})
	if err != nil {
		logger.Warn("json marshal %T failed:%v\n", data, err)
		http.Error(w, "marshal response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(respB)
}

func successWithDataResponse(data interface{}, w http.ResponseWriter) {
	writeResponse(w, CodeSuccess, "", data)
}

func failedResponse(msg string, w http.ResponseWriter) {
	writeResponse(w, CodeFailed, msg, nil)
}

// badRequestResponse names the offending query parameter
func badRequestResponse(param string, w http.ResponseWriter) {
	writeResponse(w, CodeBadRequest, "Invalid parameter "+param, nil)
}
