package openml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Run is one execution of a setup on a task.
type Run struct {
	RunID   int `json:"run_id"`
	TaskID  int `json:"task_id"`
	SetupID int `json:"setup_id"`
	FlowID  int `json:"flow_id"`
}

// SetupParameter is one named parameter value of a setup. Value holds the
// JSON-encoded form exactly as the service stores it, e.g. `5`, `"gini"` or a
// whole serialised grid for param_distributions.
type SetupParameter struct {
	ID       int    `json:"id"`
	Name     string `json:"parameter_name"`
	FullName string `json:"full_name"`
	DataType string `json:"data_type,omitempty"`
	Default  string `json:"default_value,omitempty"`
	Value    string `json:"value"`
}

// Setup is a concrete parameterisation of a flow. Parameters are ordered by
// parameter index.
type Setup struct {
	SetupID    int              `json:"setup_id"`
	FlowID     int              `json:"flow_id"`
	Parameters []SetupParameter `json:"parameters"`
}

// ParameterByName returns the parameter whose un-namespaced name is name.
// When several pipeline steps share the name, the highest index wins.
func (s Setup) ParameterByName(name string) (SetupParameter, bool) {
	for i := len(s.Parameters) - 1; i >= 0; i-- {
		if s.Parameters[i].Name == name {
			return s.Parameters[i], true
		}
	}
	return SetupParameter{}, false
}

// Evaluation is one evaluation measure of a run.
type Evaluation struct {
	RunID    int     `json:"run_id"`
	TaskID   int     `json:"task_id"`
	SetupID  int     `json:"setup_id"`
	FlowID   int     `json:"flow_id"`
	Function string  `json:"function"`
	Value    float64 `json:"value"`
}

// Wire types. OpenML encodes numbers as strings and collapses one-element
// lists into a bare object, so decoding goes through these first.

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("openml: expected integer, got %s", b)
	}
	*f = flexInt(n)
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("openml: expected number, got %s", b)
	}
	*f = flexFloat(v)
	return nil
}

// rawText keeps a JSON string's content, or the literal JSON for anything
// else (null, numbers).
type rawText string

func (r *rawText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = rawText(s)
		return nil
	}
	*r = rawText(b)
	return nil
}

type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*l = list[T]{one}
	return nil
}

type wireRun struct {
	RunID   flexInt `json:"run_id"`
	TaskID  flexInt `json:"task_id"`
	SetupID flexInt `json:"setup_id"`
	FlowID  flexInt `json:"flow_id"`
}

type runListResponse struct {
	Runs struct {
		Run list[wireRun] `json:"run"`
	} `json:"runs"`
}

type wireParameter struct {
	ID       flexInt `json:"id"`
	Name     string  `json:"parameter_name"`
	FullName string  `json:"full_name"`
	DataType rawText `json:"data_type"`
	Default  rawText `json:"default_value"`
	Value    rawText `json:"value"`
}

type wireSetup struct {
	SetupID   flexInt             `json:"setup_id"`
	FlowID    flexInt             `json:"flow_id"`
	Parameter list[wireParameter] `json:"parameter"`
}

type setupResponse struct {
	SetupParameters wireSetup `json:"setup_parameters"`
}

type setupListResponse struct {
	Setups struct {
		Setup list[wireSetup] `json:"setup"`
	} `json:"setups"`
}

type studyResponse struct {
	Study struct {
		ID    flexInt `json:"id"`
		Name  string  `json:"name"`
		Tasks struct {
			TaskID list[flexInt] `json:"task_id"`
		} `json:"tasks"`
	} `json:"study"`
}

type wireEvaluation struct {
	RunID    flexInt   `json:"run_id"`
	TaskID   flexInt   `json:"task_id"`
	SetupID  flexInt   `json:"setup_id"`
	FlowID   flexInt   `json:"flow_id"`
	Function string    `json:"function"`
	Value    flexFloat `json:"value"`
}

type evaluationListResponse struct {
	Evaluations struct {
		Evaluation list[wireEvaluation] `json:"evaluation"`
	} `json:"evaluations"`
}

type errorResponse struct {
	Error struct {
		Code    flexInt `json:"code"`
		Message string  `json:"message"`
	} `json:"error"`
}

func (w wireSetup) toSetup() Setup {
	s := Setup{
		SetupID:    int(w.SetupID),
		FlowID:     int(w.FlowID),
		Parameters: make([]SetupParameter, 0, len(w.Parameter)),
	}
	for _, p := range w.Parameter {
		s.Parameters = append(s.Parameters, SetupParameter{
			ID:       int(p.ID),
			Name:     p.Name,
			FullName: p.FullName,
			DataType: string(p.DataType),
			Default:  string(p.Default),
			Value:    string(p.Value),
		})
	}
	sort.SliceStable(s.Parameters, func(i, j int) bool {
		return s.Parameters[i].ID < s.Parameters[j].ID
	})
	return s
}
