package solver

import (
	"encoding/json"
	"fmt"
)

// Requests are single JSON documents, one per connection:
//
//	{"Ping":1}
//	{"Run":{"parameter":[...],"initial_guess":[...]}}
//	{"Kill":1}
type request struct {
	Ping *int        `json:"Ping,omitempty"`
	Kill *int        `json:"Kill,omitempty"`
	Run  *runRequest `json:"Run,omitempty"`
}

type runRequest struct {
	Parameter    []float64 `json:"parameter"`
	InitialGuess []float64 `json:"initial_guess,omitempty"`
}

type pong struct {
	Pong int `json:"Pong"`
}

type errorResponse struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func one() *int {
	v := 1
	return &v
}

// decodeResult parses a Run response into a Result or a *SolveError.
func decodeResult(body []byte) (Result, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if head.Type == "Error" {
		var e errorResponse
		if err := json.Unmarshal(body, &e); err != nil {
			return Result{}, fmt.Errorf("decode error response: %w", err)
		}
		return Result{}, &SolveError{Code: e.Code, Message: e.Message}
	}
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}
