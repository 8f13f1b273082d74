package cfg

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"taxi-ct/internal/common"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	ParamsFile      string
	DataPath        string
	RemoteURL       string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	TrackingBackend string
	TrackingURI     string
	TrackingPath    string
	TrackingTimeout time.Duration
	ExperimentName  string
	RegisteredModel string
	ModelPath       string
	ServerPort      int
	RepoPath        string
	LogLevel        string
}

type ConfigFile struct {
	Data struct {
		ParamsFile string `yaml:"paramsFile"`
		Path       string `yaml:"path"`
		Remote     string `yaml:"remote"`
		S3         struct {
			Region    string `yaml:"region"`
			Endpoint  string `yaml:"endpoint"`
			PathStyle bool   `yaml:"pathStyle"`
		} `yaml:"s3"`
	} `yaml:"data"`

	Tracking struct {
		Backend         string `yaml:"backend"`
		URI             string `yaml:"uri"`
		Path            string `yaml:"path"`
		Timeout         string `yaml:"timeout"`
		Experiment      string `yaml:"experiment"`
		RegisteredModel string `yaml:"registeredModel"`
	} `yaml:"tracking"`

	Serving struct {
		ModelPath string `yaml:"modelPath"`
		Port      int    `yaml:"port"`
	} `yaml:"serving"`

	System struct {
		RepoPath string `yaml:"repoPath"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Tracking.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	settings := Settings{
		ParamsFile:      getEnvOrDefault(common.EnvParamsFile, orDefault(config.Data.ParamsFile, common.DefaultParamsFile)),
		DataPath:        getEnvOrDefault(common.EnvDataPath, orDefault(config.Data.Path, common.DefaultDataPath)),
		RemoteURL:       getEnvOrDefault(common.EnvDataRemote, config.Data.Remote),
		S3Region:        getEnvOrDefault(common.EnvS3Region, orDefault(config.Data.S3.Region, common.DefaultS3Region)),
		S3Endpoint:      getEnvOrDefault(common.EnvS3Endpoint, config.Data.S3.Endpoint),
		S3PathStyle:     getBoolFromEnvOrConfig(common.EnvS3PathStyle, config.Data.S3.PathStyle),
		TrackingBackend: getEnvOrDefault(common.EnvTrackingBackend, orDefault(config.Tracking.Backend, common.DefaultTrackingBackend)),
		TrackingURI:     getEnvOrDefault(common.EnvTrackingURI, orDefault(config.Tracking.URI, common.DefaultTrackingURI)),
		TrackingPath:    getEnvOrDefault(common.EnvTrackingPath, orDefault(config.Tracking.Path, common.DefaultTrackingPath)),
		TrackingTimeout: getDurationOrDefault(common.EnvTrackingTimeout, timeout),
		ExperimentName:  getEnvOrDefault(common.EnvExperimentName, orDefault(config.Tracking.Experiment, common.DefaultExperimentName)),
		RegisteredModel: getEnvOrDefault(common.EnvRegisteredModel, orDefault(config.Tracking.RegisteredModel, common.DefaultRegisteredModel)),
		ModelPath:       getEnvOrDefault(common.EnvModelPath, orDefault(config.Serving.ModelPath, common.DefaultModelPath)),
		ServerPort:      getIntFromEnvOrConfig(common.EnvServerPort, config.Serving.Port, common.DefaultServerPort),
		RepoPath:        getEnvOrDefault(common.EnvRepoPath, orDefault(config.System.RepoPath, common.DefaultRepoPath)),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ParamsFile:      getEnvOrDefault(common.EnvParamsFile, common.DefaultParamsFile),
		DataPath:        getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		RemoteURL:       os.Getenv(common.EnvDataRemote), // optional
		S3Region:        getEnvOrDefault(common.EnvS3Region, common.DefaultS3Region),
		S3Endpoint:      os.Getenv(common.EnvS3Endpoint),
		S3PathStyle:     getBoolOrDefault(common.EnvS3PathStyle, false),
		TrackingBackend: getEnvOrDefault(common.EnvTrackingBackend, common.DefaultTrackingBackend),
		TrackingURI:     getEnvOrDefault(common.EnvTrackingURI, common.DefaultTrackingURI),
		TrackingPath:    getEnvOrDefault(common.EnvTrackingPath, common.DefaultTrackingPath),
		TrackingTimeout: getDurationOrDefault(common.EnvTrackingTimeout, 30*time.Second),
		ExperimentName:  getEnvOrDefault(common.EnvExperimentName, common.DefaultExperimentName),
		RegisteredModel: getEnvOrDefault(common.EnvRegisteredModel, common.DefaultRegisteredModel),
		ModelPath:       getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ServerPort:      getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		RepoPath:        getEnvOrDefault(common.EnvRepoPath, common.DefaultRepoPath),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings checks the values every binary depends on
func validateSettings(settings *Settings) error {
	switch settings.TrackingBackend {
	case common.BackendLocal:
		if settings.TrackingPath == "" {
			return fmt.Errorf("tracking path cannot be empty for the %s backend", common.BackendLocal)
		}
	case common.BackendMLflow:
		u, err := url.Parse(settings.TrackingURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid tracking URI %q", settings.TrackingURI)
		}
	default:
		return fmt.Errorf("unknown tracking backend %q (want %s or %s)",
			settings.TrackingBackend, common.BackendLocal, common.BackendMLflow)
	}

	if settings.TrackingTimeout < time.Second || settings.TrackingTimeout > 10*time.Minute {
		return fmt.Errorf("tracking timeout must be between 1s and 10m, got %v", settings.TrackingTimeout)
	}
	if settings.ServerPort < 1024 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1024 and 65535, got %d", settings.ServerPort)
	}
	if settings.ExperimentName == "" {
		return fmt.Errorf("experiment name cannot be empty")
	}
	if settings.RegisteredModel == "" {
		return fmt.Errorf("registered model name cannot be empty")
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	return nil
}
