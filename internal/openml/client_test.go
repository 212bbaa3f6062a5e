package openml

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/openml-pimp/internal/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusPreconditionFailed)
			w.Write([]byte(`{"error": {"code": "512", "message": "No results"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_ListRuns(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/run/list/task/3/flow/6970": `{"runs": {"run": [
			{"run_id": "101", "task_id": "3", "setup_id": "7", "flow_id": "6970", "uploader": "1"},
			{"run_id": "102", "task_id": "3", "setup_id": "8", "flow_id": "6970", "uploader": "1"}
		]}}`,
		"/run/list/task/4/flow/6970": `{"runs": {"run": {"run_id": "201", "task_id": "4", "setup_id": "9", "flow_id": "6970"}}}`,
	})
	c := NewClient(server.URL, "", nil)
	ctx := context.Background()

	runs, err := c.ListRuns(ctx, 3, 6970)
	require.NoError(t, err)
	assert.Equal(t, []Run{
		{RunID: 101, TaskID: 3, SetupID: 7, FlowID: 6970},
		{RunID: 102, TaskID: 3, SetupID: 8, FlowID: 6970},
	}, runs)

	// Single-element listings arrive as an object.
	runs, err = c.ListRuns(ctx, 4, 6970)
	require.NoError(t, err)
	assert.Equal(t, []Run{{RunID: 201, TaskID: 4, SetupID: 9, FlowID: 6970}}, runs)

	_, err = c.ListRuns(ctx, 5, 6970)
	assert.True(t, errors.Is(err, ErrNoResults), "got %v", err)
}

func TestClient_GetSetup(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/setup/7": `{"setup_parameters": {"setup_id": "7", "flow_id": "6970", "parameter": [
			{"id": "12", "flow_id": "6969", "full_name": "sklearn.RandomForest(1)_min_samples_leaf",
			 "parameter_name": "min_samples_leaf", "data_type": "int", "default_value": "1", "value": "5"},
			{"id": "3", "flow_id": "6970", "full_name": "sklearn.RandomizedSearchCV(1)_param_distributions",
			 "parameter_name": "param_distributions", "value": "{\"classifier__bootstrap\": [true, false]}"},
			{"id": "20", "parameter_name": "class_weight", "value": null}
		]}}`,
	})
	c := NewClient(server.URL, "", nil)

	s, err := c.GetSetup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, s.SetupID)
	assert.Equal(t, 6970, s.FlowID)
	require.Len(t, s.Parameters, 3)

	// Ordered by parameter index.
	assert.Equal(t, []int{3, 12, 20}, []int{s.Parameters[0].ID, s.Parameters[1].ID, s.Parameters[2].ID})

	p, ok := s.ParameterByName("param_distributions")
	require.True(t, ok)
	assert.Equal(t, `{"classifier__bootstrap": [true, false]}`, p.Value)

	p, ok = s.ParameterByName("min_samples_leaf")
	require.True(t, ok)
	assert.Equal(t, "5", p.Value)
	assert.Equal(t, 12, p.ID)

	p, ok = s.ParameterByName("class_weight")
	require.True(t, ok)
	assert.Equal(t, "null", p.Value)

	_, ok = s.ParameterByName("missing")
	assert.False(t, ok)
}

func TestClient_ListSetups(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/setup/list/flow/6970": `{"setups": {"setup": [
			{"setup_id": "7", "flow_id": "6970", "parameter": [{"id": "1", "parameter_name": "a", "value": "1"}]},
			{"setup_id": "8", "flow_id": "6970", "parameter": {"id": "1", "parameter_name": "a", "value": "2"}}
		]}}`,
	})
	c := NewClient(server.URL, "", nil)

	setups, err := c.ListSetups(context.Background(), 6970)
	require.NoError(t, err)
	require.Len(t, setups, 2)
	assert.Equal(t, "2", setups[8].Parameters[0].Value)
}

func TestClient_StudyTasks(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/study/14": `{"study": {"id": "14", "name": "OpenML100", "tasks": {"task_id": ["3", "6", "11"]}}}`,
	})
	c := NewClient(server.URL, "", nil)

	tasks, err := c.StudyTasks(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 11}, tasks)
}

func TestClient_ListEvaluations(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/evaluation/list/function/predictive_accuracy/task/3/flow/6970": `{"evaluations": {"evaluation": [
			{"run_id": "101", "task_id": "3", "setup_id": "7", "flow_id": "6970", "function": "predictive_accuracy", "value": "0.91"},
			{"run_id": "102", "task_id": "3", "setup_id": "8", "flow_id": "6970", "function": "predictive_accuracy", "value": 0.87}
		]}}`,
	})
	c := NewClient(server.URL, "", nil)

	evals, err := c.ListEvaluations(context.Background(), 3, 6970, "predictive_accuracy")
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.InDelta(t, 0.91, evals[0].Value, 1e-12)
	assert.InDelta(t, 0.87, evals[1].Value, 1e-12)
	assert.Equal(t, 8, evals[1].SetupID)
}

func TestClient_APIKeyAndErrors(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusPreconditionFailed, `{"error": {"code": "103", "message": "Authentication failed"}}`)
	mock.AddResponse(http.StatusInternalServerError, `oops`)

	c := NewClient("http://openml.test/api/v1/json/", "secret", mock)
	_, err := c.StudyTasks(context.Background(), 14)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoResults))
	assert.Contains(t, err.Error(), "Authentication failed")

	req := mock.GetRequest(0)
	require.NotNil(t, req)
	assert.Equal(t, "/api/v1/json/study/14", req.URL.Path)
	assert.Equal(t, "secret", req.URL.Query().Get("api_key"))

	_, err = c.GetSetup(context.Background(), 1)
	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestClient_ErrorsOmitAPIKey(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusInternalServerError, "internal error")

	c := NewClient("https://example.org/api/v1/json", "s3cr3t-key", mock)
	_, err := c.ListRuns(context.Background(), 3, 6970)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cr3t-key")
	assert.Contains(t, err.Error(), "/run/list/task/3/flow/6970")
	assert.Equal(t, "s3cr3t-key", mock.GetRequest(0).URL.Query().Get("api_key"))
}

func TestSetup_ParameterByNameSharedName(t *testing.T) {
	s := Setup{SetupID: 1, Parameters: []SetupParameter{
		{ID: 4, Name: "strategy", FullName: "imputation__strategy", Value: `"mean"`},
		{ID: 9, Name: "strategy", FullName: "sampler__strategy", Value: `"auto"`},
		{ID: 12, Name: "max_depth", Value: "3"},
	}}

	p, ok := s.ParameterByName("strategy")
	require.True(t, ok)
	assert.Equal(t, 9, p.ID)
	assert.Equal(t, `"auto"`, p.Value)
}
