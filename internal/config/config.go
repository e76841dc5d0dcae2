package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr     string         `yaml:"addr"`
	Model    ModelConfig    `yaml:"model"`
	Camera   CameraConfig   `yaml:"camera"`
	Loop     LoopConfig     `yaml:"loop"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

type ModelConfig struct {
	Path         string `yaml:"path"`
	MetadataPath string `yaml:"metadata_path"`
	OrtLibrary   string `yaml:"ort_library"`
}

type CameraConfig struct {
	Device int   `yaml:"device"`
	Width  int   `yaml:"width"`
	Height int   `yaml:"height"`
	Flip   *bool `yaml:"flip"`
}

type LoopConfig struct {
	// FrameInterval is the delay between prediction steps.
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type SnapshotConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the YAML file at path (a missing file means "all defaults"),
// applies environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.MetadataPath = getEnv("METADATA_PATH", c.Model.MetadataPath)
	c.Model.OrtLibrary = getEnv("ORT_LIBRARY", c.Model.OrtLibrary)
	c.Snapshot.Dir = getEnv("SNAPSHOT_DIR", c.Snapshot.Dir)
	if dev := os.Getenv("CAMERA_DEVICE"); dev != "" {
		n, err := strconv.Atoi(dev)
		if err != nil {
			return fmt.Errorf("CAMERA_DEVICE: %w", err)
		}
		c.Camera.Device = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Model.Path == "" {
		c.Model.Path = "models/model.onnx"
	}
	if c.Model.MetadataPath == "" {
		c.Model.MetadataPath = "models/metadata.json"
	}
	if c.Camera.Width <= 0 {
		c.Camera.Width = 500
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = 375
	}
	if c.Camera.Flip == nil {
		flip := true
		c.Camera.Flip = &flip
	}
	if c.Loop.FrameInterval <= 0 {
		c.Loop.FrameInterval = 16 * time.Millisecond
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "snapshots"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
