package model

import (
	"encoding/json"
	"errors"
	"time"
)

type ResultStatus string

const (
	SUCCESS ResultStatus = "success"
	FAILURE ResultStatus = "failure"
)

func SuccessResult(msg string) *Result {
	return &Result{
		Status: SUCCESS,
		Msg:    msg,
		Time:   time.Now(),
	}
}

func FailureResult(err error) *Result {
	return &Result{
		Status: FAILURE,
		Msg:    err.Error(),
		Time:   time.Now(),
	}
}

// Result is the body of every HTTP API response. Data is set on the way
// out; Raw holds the undecoded data on the way in.
type Result struct {
	Status ResultStatus
	Msg    string
	Data   any
	Raw    json.RawMessage
	Time   time.Time
}

type resultJSON struct {
	Status ResultStatus    `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data,omitempty"`
	Time   time.Time       `json:"time"`
}

// Err returns the failure message as an error, nil on success.
func (r *Result) Err() error {
	if r.Status == SUCCESS {
		return nil
	}
	return errors.New(r.Msg)
}

// Decode unmarshals the received data into v.
func (r *Result) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}

	if len(r.Raw) == 0 {
		return errors.New("result has no data")
	}

	return json.Unmarshal(r.Raw, v)
}

func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Status: r.Status,
		Msg:    r.Msg,
		Time:   r.Time,
	}

	if r.Data != nil {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return nil, err
		}
		out.Data = data
	}

	return json.Marshal(&out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	r.Status = in.Status
	r.Msg = in.Msg
	r.Raw = in.Data
	r.Time = in.Time
	return nil
}
