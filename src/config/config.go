package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config is the application configuration read from config.json.
type Config struct {
	DataPath   string `json:"data_path"`  // workbook with the customer records
	SheetName  string `json:"sheet_name"` // sheet holding columns A-K
	ExportPath string `json:"export_path"`
	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"` // e.g. "10 * 1024 * 1024"
	LogLevel   string `json:"log_level"`    // DEBUG, INFO, WARNING, ERROR or FATAL
	// LogAddr, when set, serves the live log stream on /logs.
	LogAddr string `json:"log_addr"`

	// Schedule is a cron spec; empty means the models run once.
	Schedule string `json:"schedule"`
	// Watch reruns the models whenever the workbook changes on disk.
	Watch bool `json:"watch"`

	Loader LoaderConfig `json:"loader"`

	Split struct {
		TestSize float64 `json:"test_size"`
		Seed     int64   `json:"seed"`
	} `json:"split"`

	Email struct {
		Enabled       bool     `json:"enabled"`
		Server        string   `json:"server"`         // IMAP server, host:port
		Username      string   `json:"username"`
		Password      string   `json:"password"`
		TargetSubject string   `json:"target_subject"` // subject keyword of the mail carrying the workbook
		CheckInterval Duration `json:"check_interval"` // only mails younger than this are considered
	} `json:"email"`

	SendEmail struct {
		Server   string   `json:"server"` // SMTP server, host:port
		Username string   `json:"username"`
		Password string   `json:"password"`
		To       []string `json:"to"`
		Subject  string   `json:"subject"`
	} `json:"send_email"`
}

// LoaderConfig mirrors the loader switches. Omitted keys default to true.
type LoaderConfig struct {
	DropNA                    bool `json:"dropna"`
	GetDummies                bool `json:"get_dummies"`
	DropNegativeMonthlyIncome bool `json:"drop_negative_monthly_income"`
	DropDummyGender           bool `json:"drop_dummy_gender"`
	DropDummyRegion           bool `json:"drop_dummy_region"`
	DropDummyChannel          bool `json:"drop_dummy_channel"`
}

// ModelSpec names one logistic model: a target column and the regressors fed to it.
type ModelSpec struct {
	Name      string   `json:"name"`
	Target    string   `json:"target"`
	Features  []string `json:"features"`
	Threshold float64  `json:"threshold"`
}

// DataConfig is read from dataconfig.json.
type DataConfig struct {
	Models []ModelSpec `json:"models"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	loadErr            error
)

// LoadConfig reads both configuration files once per process and returns the cached result
// on later calls.
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		instance, dataConfigInstance, loadErr = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, loadErr
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read data config: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	return waitForResults(cfgChan, dcfgChan, errChan)
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filePath, err)
	}
	return data, nil
}

// Default returns the configuration used for every key missing from config.json.
func Default() *Config {
	cfg := &Config{
		DataPath:   filepath.Join("data", "Dados Case - Cientista de Dados [Contabilizei].xlsx"),
		SheetName:  "Página1",
		LogName:    "app.log",
		LogMaxSize: "10 * 1024 * 1024",
		LogLevel:   "DEBUG",
		Loader: LoaderConfig{
			DropNA:                    true,
			GetDummies:                true,
			DropNegativeMonthlyIncome: true,
			DropDummyGender:           true,
			DropDummyRegion:           true,
			DropDummyChannel:          true,
		},
	}
	cfg.Split.TestSize = 0.25
	cfg.Split.Seed = 966588769
	cfg.Email.CheckInterval = Duration(24 * time.Hour)
	return cfg
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		errChan <- fmt.Errorf("parse Config: %w", err)
		return
	}
	if err := cfg.validate(); err != nil {
		errChan <- err
		return
	}
	resultChan <- cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("parse DataConfig: %w", err)
		return
	}
	for i := range dcfg.Models {
		m := &dcfg.Models[i]
		if m.Name == "" || m.Target == "" || len(m.Features) == 0 {
			errChan <- fmt.Errorf("parse DataConfig: model %d needs name, target and features", i)
			return
		}
		if m.Threshold == 0 {
			m.Threshold = 0.5
		}
	}
	resultChan <- &dcfg
}

func (c *Config) validate() error {
	if c.DataPath == "" {
		return errors.New("config: data_path is empty")
	}
	if c.SheetName == "" {
		return errors.New("config: sheet_name is empty")
	}
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return fmt.Errorf("config: split.test_size must be in (0, 1), got %v", c.Split.TestSize)
	}
	return nil
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, errors.New("configuration only partially loaded")
	}

	return cfg, dcfg, nil
}

// Model looks up a model spec by name.
func (dc *DataConfig) Model(name string) (ModelSpec, bool) {
	for _, m := range dc.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// Select returns the named models in the given order, or every model when names is empty.
func (dc *DataConfig) Select(names []string) ([]ModelSpec, error) {
	if len(names) == 0 {
		return dc.Models, nil
	}
	out := make([]ModelSpec, 0, len(names))
	for _, name := range names {
		m, ok := dc.Model(name)
		if !ok {
			return nil, fmt.Errorf("config: unknown model %q", name)
		}
		out = append(out, m)
	}
	return out, nil
}

// Duration wraps time.Duration so it can be written as "5m" in JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
