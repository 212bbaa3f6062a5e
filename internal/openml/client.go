// Package openml is a small client for the OpenML JSON REST API: runs,
// setups, studies and evaluations.
package openml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/openml-pimp/internal/httputil"
)

// DefaultBaseURL is the public OpenML JSON endpoint.
const DefaultBaseURL = "https://www.openml.org/api/v1/json"

// ErrNoResults is returned when the service reports an empty listing.
var ErrNoResults = errors.New("openml: no results")

// Error codes OpenML attaches to HTTP 412 responses for empty listings.
var noResultCodes = map[int]bool{
	372: true, // run list: no results
	482: true, // setup list: no results
	512: true, // generic: no results
	542: true, // evaluation list: no results
}

// Service is the subset of the tracking platform the benchmark depends on.
type Service interface {
	ListRuns(ctx context.Context, taskID, flowID int) ([]Run, error)
	GetSetup(ctx context.Context, setupID int) (Setup, error)
	ListSetups(ctx context.Context, flowID int) (map[int]Setup, error)
	StudyTasks(ctx context.Context, studyID int) ([]int, error)
	ListEvaluations(ctx context.Context, taskID, flowID int, measure string) ([]Evaluation, error)
}

// Client implements Service over HTTP.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    httputil.HTTPClient
}

// NewClient creates a client. Empty baseURL selects DefaultBaseURL and a nil
// transport selects httputil.NewStandardClient(nil).
func NewClient(baseURL, apiKey string, transport httputil.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if transport == nil {
		transport = httputil.NewStandardClient(nil)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    transport,
	}
}

func (c *Client) endpoint(parts ...string) string {
	u := c.BaseURL + "/" + strings.Join(parts, "/")
	if c.APIKey != "" {
		u += "?api_key=" + url.QueryEscape(c.APIKey)
	}
	return u
}

func (c *Client) get(ctx context.Context, out interface{}, parts ...string) error {
	err := httputil.GetJSON(ctx, c.HTTP, c.endpoint(parts...), out)
	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusPreconditionFailed {
		var er errorResponse
		if json.Unmarshal(se.Body, &er) == nil {
			if noResultCodes[int(er.Error.Code)] {
				return fmt.Errorf("%w: %s", ErrNoResults, strings.Join(parts, "/"))
			}
			if er.Error.Message != "" {
				return fmt.Errorf("openml error %d: %s", er.Error.Code, er.Error.Message)
			}
		}
	}
	return err
}

// ListRuns lists all runs of flowID on taskID.
func (c *Client) ListRuns(ctx context.Context, taskID, flowID int) ([]Run, error) {
	var resp runListResponse
	if err := c.get(ctx, &resp, "run", "list", "task", itoa(taskID), "flow", itoa(flowID)); err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(resp.Runs.Run))
	for _, r := range resp.Runs.Run {
		runs = append(runs, Run{
			RunID:   int(r.RunID),
			TaskID:  int(r.TaskID),
			SetupID: int(r.SetupID),
			FlowID:  int(r.FlowID),
		})
	}
	return runs, nil
}

// GetSetup fetches a single setup.
func (c *Client) GetSetup(ctx context.Context, setupID int) (Setup, error) {
	var resp setupResponse
	if err := c.get(ctx, &resp, "setup", itoa(setupID)); err != nil {
		return Setup{}, err
	}
	s := resp.SetupParameters.toSetup()
	if s.SetupID == 0 {
		s.SetupID = setupID
	}
	return s, nil
}

// ListSetups fetches every setup of flowID keyed by setup id.
func (c *Client) ListSetups(ctx context.Context, flowID int) (map[int]Setup, error) {
	var resp setupListResponse
	if err := c.get(ctx, &resp, "setup", "list", "flow", itoa(flowID)); err != nil {
		return nil, err
	}
	setups := make(map[int]Setup, len(resp.Setups.Setup))
	for _, w := range resp.Setups.Setup {
		s := w.toSetup()
		setups[s.SetupID] = s
	}
	return setups, nil
}

// StudyTasks returns the task ids of a study in the order the service lists
// them.
func (c *Client) StudyTasks(ctx context.Context, studyID int) ([]int, error) {
	var resp studyResponse
	if err := c.get(ctx, &resp, "study", itoa(studyID)); err != nil {
		return nil, err
	}
	tasks := make([]int, 0, len(resp.Study.Tasks.TaskID))
	for _, id := range resp.Study.Tasks.TaskID {
		tasks = append(tasks, int(id))
	}
	return tasks, nil
}

// ListEvaluations lists the evaluations of measure for every run of flowID on
// taskID.
func (c *Client) ListEvaluations(ctx context.Context, taskID, flowID int, measure string) ([]Evaluation, error) {
	var resp evaluationListResponse
	err := c.get(ctx, &resp, "evaluation", "list", "function", url.PathEscape(measure),
		"task", itoa(taskID), "flow", itoa(flowID))
	if err != nil {
		return nil, err
	}
	evals := make([]Evaluation, 0, len(resp.Evaluations.Evaluation))
	for _, e := range resp.Evaluations.Evaluation {
		evals = append(evals, Evaluation{
			RunID:    int(e.RunID),
			TaskID:   int(e.TaskID),
			SetupID:  int(e.SetupID),
			FlowID:   int(e.FlowID),
			Function: e.Function,
			Value:    float64(e.Value),
		})
	}
	return evals, nil
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
