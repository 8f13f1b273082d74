package common

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvParamsFile      = "PARAMS_FILE"
	EnvDataPath        = "DATA_PATH"
	EnvDataRemote      = "DATA_REMOTE"
	EnvS3Region        = "S3_REGION"
	EnvS3Endpoint      = "S3_ENDPOINT"
	EnvS3PathStyle     = "S3_PATH_STYLE"
	EnvTrackingBackend = "TRACKING_BACKEND"
	EnvTrackingURI     = "MLFLOW_TRACKING_URI"
	EnvTrackingPath    = "TRACKING_PATH"
	EnvTrackingTimeout = "TRACKING_TIMEOUT"
	EnvExperimentName  = "EXPERIMENT_NAME"
	EnvRegisteredModel = "REGISTERED_MODEL"
	EnvModelPath       = "MODEL_PATH"
	EnvServerPort      = "SERVER_PORT"
	EnvRepoPath        = "REPO_PATH"
	EnvLogLevel        = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultParamsFile      = "params.yaml"
	DefaultDataPath        = "data/raw/train.csv"
	DefaultS3Region        = "us-east-1"
	DefaultTrackingBackend = BackendLocal
	DefaultTrackingURI     = "http://localhost:5001"
	DefaultTrackingPath    = "mlruns"
	DefaultExperimentName  = "Taxi_Fare_Prediction_CT"
	DefaultRegisteredModel = "Production_CT_Model"
	DefaultModelPath       = "model/ml_service.pkl"
	DefaultServerPort      = 9699
	DefaultRepoPath        = "."
	DefaultLogLevel        = "info"
	DefaultSampleCount     = 10000
)

// Tracking backends
const (
	BackendLocal  = "local"
	BackendMLflow = "mlflow"
)

// Hyperparameter defaults applied when params.yaml omits a key
const (
	DefaultC           = 0.5
	DefaultRandomState = 42
	DefaultTestSize    = 0.2
)

// Run bookkeeping names shared by the trainer and the tracking backends
const (
	RunName            = "dvc-ct-run"
	ParamC             = "regularization_C"
	ParamTestSize      = "test_size"
	MetricTestAccuracy = "test_accuracy"
	TagDataCommitHash  = "data_commit_hash"
	ModelArtifactPath  = "model/model.json"
	UnknownRevision    = "unknown"
)

// Feature engineering
const (
	LongTripThreshold = 5.0 // miles; is_long_trip is strictly greater
	FeaturePassengers = "passenger_count"
	FeatureDistance   = "trip_distance"
	LabelLongTrip     = "is_long_trip"
)
