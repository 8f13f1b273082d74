package mlflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"taxi-ct/internal/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-memory subset of the MLflow REST API.
type fakeServer struct {
	mu          sync.Mutex
	experiments map[string]string
	runs        map[string]*runEnvelope
	artifacts   map[string][]byte
	models      map[string][]modelVersion
	failUpload  bool
	nextRun     int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		experiments: map[string]string{},
		runs:        map[string]*runEnvelope{},
		artifacts:   map[string][]byte{},
		models:      map[string][]modelVersion{},
	}
}

func (f *fakeServer) snapshot() (runs map[string]string, artifacts []string, versions map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs = map[string]string{}
	for id, env := range f.runs {
		runs[id] = env.Run.Info.Status
	}
	for k := range f.artifacts {
		artifacts = append(artifacts, k)
	}
	versions = map[string]int{}
	for name, mvs := range f.models {
		versions[name] = len(mvs)
	}
	return runs, artifacts, versions
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, APIError{ErrorCode: codeNotFound, Message: msg})
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, artifactPrefix+"/") {
		key := strings.TrimPrefix(r.URL.Path, artifactPrefix+"/")
		switch r.Method {
		case http.MethodPut:
			if f.failUpload {
				writeJSON(w, http.StatusInternalServerError, APIError{ErrorCode: "INTERNAL_ERROR", Message: "disk full"})
				return
			}
			data, _ := io.ReadAll(r.Body)
			f.artifacts[key] = data
			writeJSON(w, http.StatusOK, map[string]any{})
		case http.MethodGet:
			data, ok := f.artifacts[key]
			if !ok {
				notFound(w, key)
				return
			}
			w.Write(data)
		}
		return
	}

	var body map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	str := func(k string) string { s, _ := body[k].(string); return s }

	switch strings.TrimPrefix(r.URL.Path, apiPrefix) {
	case "/experiments/get-by-name":
		id, ok := f.experiments[r.URL.Query().Get("experiment_name")]
		if !ok {
			notFound(w, "no experiment")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"experiment": map[string]string{"experiment_id": id}})

	case "/experiments/create":
		id := strconv.Itoa(len(f.experiments) + 1)
		f.experiments[str("name")] = id
		writeJSON(w, http.StatusOK, map[string]string{"experiment_id": id})

	case "/runs/create":
		f.nextRun++
		id := "run" + strconv.Itoa(f.nextRun)
		env := &runEnvelope{}
		env.Run.Info = runInfo{
			RunID:        id,
			ExperimentID: str("experiment_id"),
			RunName:      str("run_name"),
			Status:       string(tracking.RunStatusRunning),
			StartTime:    int64(body["start_time"].(float64)),
			ArtifactURI:  "mlflow-artifacts:/" + str("experiment_id") + "/" + id + "/artifacts",
		}
		f.runs[id] = env
		writeJSON(w, http.StatusOK, env)

	case "/runs/log-batch":
		env := f.runs[str("run_id")]
		raw, _ := json.Marshal(body)
		var data runData
		json.Unmarshal(raw, &data)
		env.Run.Data = data
		writeJSON(w, http.StatusOK, map[string]any{})

	case "/runs/update":
		env := f.runs[str("run_id")]
		env.Run.Info.Status = str("status")
		env.Run.Info.EndTime = int64(body["end_time"].(float64))
		writeJSON(w, http.StatusOK, map[string]any{})

	case "/runs/get":
		env, ok := f.runs[r.URL.Query().Get("run_id")]
		if !ok {
			notFound(w, "no run")
			return
		}
		writeJSON(w, http.StatusOK, env)

	case "/registered-models/create":
		if _, ok := f.models[str("name")]; ok {
			writeJSON(w, http.StatusBadRequest, APIError{ErrorCode: codeAlreadyExists, Message: "exists"})
			return
		}
		f.models[str("name")] = nil
		writeJSON(w, http.StatusOK, map[string]any{})

	case "/model-versions/create":
		name := str("name")
		mv := modelVersion{
			Name:              name,
			Version:           strconv.Itoa(len(f.models[name]) + 1),
			RunID:             str("run_id"),
			Source:            str("source"),
			CreationTimestamp: time.Now().UnixMilli(),
		}
		f.models[name] = append(f.models[name], mv)
		writeJSON(w, http.StatusOK, map[string]any{"model_version": mv})

	case "/model-versions/get":
		q := r.URL.Query()
		for _, mv := range f.models[q.Get("name")] {
			if mv.Version == q.Get("version") {
				writeJSON(w, http.StatusOK, map[string]any{"model_version": mv})
				return
			}
		}
		notFound(w, "no version")

	case "/model-versions/search":
		filter := r.URL.Query().Get("filter")
		name := strings.TrimSuffix(strings.TrimPrefix(filter, "name='"), "'")
		// oldest first, so the client has to sort
		writeJSON(w, http.StatusOK, map[string]any{"model_versions": f.models[name]})

	default:
		http.NotFound(w, r)
	}
}

func testRecord() tracking.RunRecord {
	return tracking.RunRecord{
		ExperimentName:  "Taxi_Fare_Prediction_CT",
		RunName:         "dvc-ct-run",
		StartTime:       time.Now(),
		Params:          map[string]string{"regularization_C": "0.5", "test_size": "0.2"},
		Metrics:         map[string]float64{"test_accuracy": 0.93},
		Tags:            map[string]string{"data_commit_hash": "abc123"},
		ArtifactPath:    "model/model.json",
		Artifact:        []byte(`{"kind":"logistic_regression"}`),
		RegisteredModel: "Production_CT_Model",
	}
}

func setup(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	fake := newFakeServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, New(srv.URL+"/", 5*time.Second)
}

func TestRecord(t *testing.T) {
	fake, client := setup(t)
	ctx := context.Background()

	run, version, err := client.Record(ctx, testRecord())
	require.NoError(t, err)

	assert.Equal(t, "run1", run.RunID)
	assert.Equal(t, "1", run.ExperimentID)
	assert.Equal(t, tracking.RunStatusFinished, run.Status)
	assert.Equal(t, 1, version.Version)
	assert.Equal(t, "runs:/run1/model/model.json", version.Source)

	got, err := client.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.RunStatusFinished, got.Status)
	assert.InDelta(t, 0.93, got.Metrics["test_accuracy"], 1e-12)
	assert.Equal(t, "0.5", got.Params["regularization_C"])
	assert.Equal(t, "abc123", got.Tags["data_commit_hash"])

	artifact, err := client.Artifact(ctx, run.RunID, "model/model.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"logistic_regression"}`, string(artifact))

	_, artifacts, _ := fake.snapshot()
	assert.Contains(t, artifacts, "1/run1/artifacts/model/model.json")
	assert.Equal(t, client.base+"/#/experiments/1/runs/run1", client.RunURL(run))
}

func TestRecord_SecondRunReusesExperimentAndModel(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()

	first, _, err := client.Record(ctx, testRecord())
	require.NoError(t, err)
	second, version, err := client.Record(ctx, testRecord())
	require.NoError(t, err)

	assert.Equal(t, first.ExperimentID, second.ExperimentID)
	assert.Equal(t, 2, version.Version)

	latest, err := client.LatestVersion(ctx, "Production_CT_Model")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, second.RunID, latest.RunID)

	versions, err := client.ListVersions(ctx, "Production_CT_Model")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)

	v1, err := client.GetVersion(ctx, "Production_CT_Model", 1)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, v1.RunID)
}

func TestRecord_FailedUploadMarksRunFailed(t *testing.T) {
	fake, client := setup(t)
	fake.mu.Lock()
	fake.failUpload = true
	fake.mu.Unlock()

	_, _, err := client.Record(context.Background(), testRecord())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)

	runs, _, versions := fake.snapshot()
	assert.Equal(t, string(tracking.RunStatusFailed), runs["run1"])
	assert.Zero(t, versions["Production_CT_Model"])
}

func TestRecord_InvalidRecord(t *testing.T) {
	fake, client := setup(t)
	rec := testRecord()
	rec.Metrics = nil

	_, _, err := client.Record(context.Background(), rec)
	assert.ErrorIs(t, err, tracking.ErrInvalidRecord)
	runs, _, _ := fake.snapshot()
	assert.Empty(t, runs)
}

func TestNotFoundErrors(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()

	_, err := client.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, tracking.ErrRunNotFound)

	_, err = client.LatestVersion(ctx, "Production_CT_Model")
	assert.ErrorIs(t, err, tracking.ErrModelNotFound)

	_, err = client.GetVersion(ctx, "Production_CT_Model", 3)
	assert.ErrorIs(t, err, tracking.ErrVersionNotFound)

	run, _, err := client.Record(ctx, testRecord())
	require.NoError(t, err)
	_, err = client.Artifact(ctx, run.RunID, "model/other.json")
	assert.ErrorIs(t, err, tracking.ErrArtifactNotFound)
}

func TestArtifactRoot(t *testing.T) {
	assert.Equal(t, "7/abc/artifacts", artifactRoot(runInfo{ArtifactURI: "mlflow-artifacts:/7/abc/artifacts"}))
	assert.Equal(t, "7/abc/artifacts", artifactRoot(runInfo{ArtifactURI: "s3://bucket/7/abc/artifacts", ExperimentID: "7", RunID: "abc"}))
}
