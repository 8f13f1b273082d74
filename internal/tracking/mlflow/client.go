// Package mlflow implements tracking.Store against an MLflow tracking server
// over its REST API.
package mlflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"taxi-ct/internal/tracking"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	apiPrefix      = "/api/2.0/mlflow"
	artifactPrefix = "/api/2.0/mlflow-artifacts/artifacts"

	codeAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	codeNotFound      = "RESOURCE_DOES_NOT_EXIST"
)

// APIError is the error body MLflow returns for non-2xx responses.
type APIError struct {
	Status    int    `json:"-"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.ErrorCode, e.Message)
}

// Client talks to one MLflow tracking server.
type Client struct {
	base string
	rest *resty.Client
}

var _ tracking.Store = (*Client)(nil)

func New(uri string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(uri, "/"), rest: r}
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type runInfo struct {
	RunID        string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
	RunName      string `json:"run_name"`
	Status       string `json:"status"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
	ArtifactURI  string `json:"artifact_uri"`
}

type runData struct {
	Metrics []metric   `json:"metrics"`
	Params  []keyValue `json:"params"`
	Tags    []keyValue `json:"tags"`
}

type runEnvelope struct {
	Run struct {
		Info runInfo `json:"info"`
		Data runData `json:"data"`
	} `json:"run"`
}

type modelVersion struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	RunID             string `json:"run_id"`
	Source            string `json:"source"`
	CreationTimestamp int64  `json:"creation_timestamp"`
}

// call performs one JSON request. A nil body sends no payload.
func (c *Client) call(ctx context.Context, method, path string, query map[string]string, body, result any) error {
	apiErr := &APIError{}
	req := c.rest.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.String()
		}
		return apiErr
	}
	return nil
}

func isCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == code
}

func (c *Client) experimentID(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.call(ctx, http.MethodGet, apiPrefix+"/experiments/get-by-name",
		map[string]string{"experiment_name": name}, nil, &got)
	if err == nil {
		return got.Experiment.ExperimentID, nil
	}
	if !isCode(err, codeNotFound) {
		return "", fmt.Errorf("get experiment %s: %w", name, err)
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.call(ctx, http.MethodPost, apiPrefix+"/experiments/create", nil,
		map[string]string{"name": name}, &created); err != nil {
		return "", fmt.Errorf("create experiment %s: %w", name, err)
	}
	log.Info().Str("experiment", name).Str("id", created.ExperimentID).Msg("Created MLflow experiment")
	return created.ExperimentID, nil
}

// Record creates the run, logs params, metrics and tags, uploads the
// artifact and registers it. If any step after run creation fails the run is
// marked FAILED so it never shows up as a finished run without a model.
func (c *Client) Record(ctx context.Context, rec tracking.RunRecord) (run tracking.Run, version tracking.ModelVersion, err error) {
	if err := rec.Validate(); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}

	expID, err := c.experimentID(ctx, rec.ExperimentName)
	if err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}

	start := rec.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	var created runEnvelope
	err = c.call(ctx, http.MethodPost, apiPrefix+"/runs/create", nil, map[string]any{
		"experiment_id": expID,
		"run_name":      rec.RunName,
		"start_time":    start.UnixMilli(),
	}, &created)
	if err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, fmt.Errorf("create run: %w", err)
	}
	info := created.Run.Info

	defer func() {
		if err == nil {
			return
		}
		// Use a fresh context: ctx may be the reason we failed.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if uerr := c.updateRun(cleanupCtx, info.RunID, tracking.RunStatusFailed); uerr != nil {
			log.Warn().Err(uerr).Str("run_id", info.RunID).Msg("Failed to mark run as FAILED")
		}
	}()

	if err = c.logBatch(ctx, info.RunID, rec); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}
	if err = c.uploadArtifact(ctx, info, rec.ArtifactPath, rec.Artifact); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}
	if version, err = c.register(ctx, rec.RegisteredModel, info.RunID, tracking.RunsURI(info.RunID, rec.ArtifactPath)); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}
	if err = c.updateRun(ctx, info.RunID, tracking.RunStatusFinished); err != nil {
		return tracking.Run{}, tracking.ModelVersion{}, err
	}

	run = tracking.Run{
		RunID:        info.RunID,
		ExperimentID: expID,
		RunName:      rec.RunName,
		Status:       tracking.RunStatusFinished,
		StartTime:    start.UTC(),
		EndTime:      time.Now().UTC(),
		Params:       rec.Params,
		Metrics:      rec.Metrics,
		Tags:         rec.Tags,
		ArtifactURI:  info.ArtifactURI,
	}
	return run, version, nil
}

func (c *Client) logBatch(ctx context.Context, runID string, rec tracking.RunRecord) error {
	now := time.Now().UnixMilli()
	params := make([]keyValue, 0, len(rec.Params))
	for k, v := range rec.Params {
		params = append(params, keyValue{Key: k, Value: v})
	}
	metrics := make([]metric, 0, len(rec.Metrics))
	for k, v := range rec.Metrics {
		metrics = append(metrics, metric{Key: k, Value: v, Timestamp: now})
	}
	tags := make([]keyValue, 0, len(rec.Tags))
	for k, v := range rec.Tags {
		tags = append(tags, keyValue{Key: k, Value: v})
	}

	err := c.call(ctx, http.MethodPost, apiPrefix+"/runs/log-batch", nil, map[string]any{
		"run_id":  runID,
		"params":  params,
		"metrics": metrics,
		"tags":    tags,
	}, nil)
	if err != nil {
		return fmt.Errorf("log run data: %w", err)
	}
	return nil
}

func (c *Client) updateRun(ctx context.Context, runID string, status tracking.RunStatus) error {
	err := c.call(ctx, http.MethodPost, apiPrefix+"/runs/update", nil, map[string]any{
		"run_id":   runID,
		"status":   string(status),
		"end_time": time.Now().UnixMilli(),
	}, nil)
	if err != nil {
		return fmt.Errorf("update run %s to %s: %w", runID, status, err)
	}
	return nil
}

// artifactRoot maps a run's artifact URI onto the artifact proxy path.
func artifactRoot(info runInfo) string {
	if rest, ok := strings.CutPrefix(info.ArtifactURI, "mlflow-artifacts:"); ok {
		return strings.Trim(rest, "/")
	}
	return fmt.Sprintf("%s/%s/artifacts", info.ExperimentID, info.RunID)
}

func artifactURL(info runInfo, path string) string {
	segments := strings.Split(artifactRoot(info)+"/"+strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return artifactPrefix + "/" + strings.Join(segments, "/")
}

func (c *Client) uploadArtifact(ctx context.Context, info runInfo, path string, data []byte) error {
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		SetError(apiErr).
		Put(c.base + artifactURL(info, path))
	if err != nil {
		return fmt.Errorf("upload artifact %s: %w", path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return fmt.Errorf("upload artifact %s: %w", path, apiErr)
	}
	return nil
}

func (c *Client) register(ctx context.Context, name, runID, source string) (tracking.ModelVersion, error) {
	err := c.call(ctx, http.MethodPost, apiPrefix+"/registered-models/create", nil,
		map[string]string{"name": name}, nil)
	if err != nil && !isCode(err, codeAlreadyExists) {
		return tracking.ModelVersion{}, fmt.Errorf("create registered model %s: %w", name, err)
	}

	var created struct {
		ModelVersion modelVersion `json:"model_version"`
	}
	err = c.call(ctx, http.MethodPost, apiPrefix+"/model-versions/create", nil, map[string]string{
		"name":   name,
		"source": source,
		"run_id": runID,
	}, &created)
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("create model version of %s: %w", name, err)
	}
	return toModelVersion(created.ModelVersion)
}

// GetRun fetches a run with its data.
func (c *Client) GetRun(ctx context.Context, runID string) (tracking.Run, error) {
	var got runEnvelope
	err := c.call(ctx, http.MethodGet, apiPrefix+"/runs/get", map[string]string{"run_id": runID}, nil, &got)
	if isCode(err, codeNotFound) {
		return tracking.Run{}, fmt.Errorf("%w: %s", tracking.ErrRunNotFound, runID)
	}
	if err != nil {
		return tracking.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return toRun(got), nil
}

func (c *Client) LatestVersion(ctx context.Context, name string) (tracking.ModelVersion, error) {
	versions, err := c.ListVersions(ctx, name)
	if err != nil {
		return tracking.ModelVersion{}, err
	}
	return versions[0], nil
}

func (c *Client) GetVersion(ctx context.Context, name string, version int) (tracking.ModelVersion, error) {
	var got struct {
		ModelVersion modelVersion `json:"model_version"`
	}
	err := c.call(ctx, http.MethodGet, apiPrefix+"/model-versions/get", map[string]string{
		"name":    name,
		"version": strconv.Itoa(version),
	}, nil, &got)
	if isCode(err, codeNotFound) {
		return tracking.ModelVersion{}, fmt.Errorf("%w: %s version %d", tracking.ErrVersionNotFound, name, version)
	}
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("get %s version %d: %w", name, version, err)
	}
	return toModelVersion(got.ModelVersion)
}

// ListVersions returns every version of name, newest first.
func (c *Client) ListVersions(ctx context.Context, name string) ([]tracking.ModelVersion, error) {
	var got struct {
		ModelVersions []modelVersion `json:"model_versions"`
	}
	err := c.call(ctx, http.MethodGet, apiPrefix+"/model-versions/search", map[string]string{
		"filter":   fmt.Sprintf("name='%s'", strings.ReplaceAll(name, "'", "\\'")),
		"order_by": "version_number DESC",
	}, nil, &got)
	if err != nil {
		return nil, fmt.Errorf("search versions of %s: %w", name, err)
	}
	if len(got.ModelVersions) == 0 {
		return nil, fmt.Errorf("%w: %s", tracking.ErrModelNotFound, name)
	}

	versions := make([]tracking.ModelVersion, 0, len(got.ModelVersions))
	for _, mv := range got.ModelVersions {
		v, err := toModelVersion(mv)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	// order_by is not honoured by every server version
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

// Artifact downloads a run artifact through the artifact proxy.
func (c *Client) Artifact(ctx context.Context, runID, path string) ([]byte, error) {
	var got runEnvelope
	err := c.call(ctx, http.MethodGet, apiPrefix+"/runs/get", map[string]string{"run_id": runID}, nil, &got)
	if isCode(err, codeNotFound) {
		return nil, fmt.Errorf("%w: %s", tracking.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		Get(c.base + artifactURL(got.Run.Info, path))
	if err != nil {
		return nil, fmt.Errorf("download artifact %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", tracking.ErrArtifactNotFound, tracking.RunsURI(runID, path))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download artifact %s: status %d", path, resp.StatusCode())
	}
	return resp.Body(), nil
}

// RunURL links to the run page of the MLflow UI.
func (c *Client) RunURL(run tracking.Run) string {
	return fmt.Sprintf("%s/#/experiments/%s/runs/%s", c.base, run.ExperimentID, run.RunID)
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (c *Client) Close() error {
	return nil
}

func toRun(env runEnvelope) tracking.Run {
	info, data := env.Run.Info, env.Run.Data
	run := tracking.Run{
		RunID:        info.RunID,
		ExperimentID: info.ExperimentID,
		RunName:      info.RunName,
		Status:       tracking.RunStatus(info.Status),
		StartTime:    time.UnixMilli(info.StartTime).UTC(),
		ArtifactURI:  info.ArtifactURI,
		Params:       make(map[string]string, len(data.Params)),
		Metrics:      make(map[string]float64, len(data.Metrics)),
		Tags:         make(map[string]string, len(data.Tags)),
	}
	if info.EndTime > 0 {
		run.EndTime = time.UnixMilli(info.EndTime).UTC()
	}
	for _, p := range data.Params {
		run.Params[p.Key] = p.Value
	}
	for _, m := range data.Metrics {
		run.Metrics[m.Key] = m.Value
	}
	for _, t := range data.Tags {
		// mlflow.* system tags are noise for callers
		if strings.HasPrefix(t.Key, "mlflow.") {
			continue
		}
		run.Tags[t.Key] = t.Value
	}
	return run
}

func toModelVersion(mv modelVersion) (tracking.ModelVersion, error) {
	v, err := strconv.Atoi(mv.Version)
	if err != nil {
		return tracking.ModelVersion{}, fmt.Errorf("invalid version %q of %s: %w", mv.Version, mv.Name, err)
	}
	return tracking.ModelVersion{
		Name:      mv.Name,
		Version:   v,
		RunID:     mv.RunID,
		Source:    mv.Source,
		CreatedAt: time.UnixMilli(mv.CreationTimestamp).UTC(),
	}, nil
}
