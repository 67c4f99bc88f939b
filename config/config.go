package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// DBConfig Database config
type DBConfig struct {
	Type     string `yaml:"type"` // sqlite or postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// SysConfig System config
type SysConfig struct {
	Appid         string `yaml:"appid"`
	Location      string `yaml:"location"`
	Workdir       string `yaml:"workdir"`
	Debug         bool   `yaml:"debug"`
	TxHistoryDays int    `yaml:"tx_history_days"`
}

// WebConfig WEB Config
type WebConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BodyMax string `yaml:"body_max"` // upload limit, echo BodyLimit syntax (e.g. 8M)
}

// LogConfig Log config
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// ChainConfig blockchain provider and contract artifacts
type ChainConfig struct {
	// RPCURL may contain {project_id} and {api_secret} placeholders,
	// filled from ProjectID and APISecret.
	RPCURL           string `yaml:"rpc_url"`
	ProjectID        string `yaml:"project_id"`
	APISecret        string `yaml:"api_secret"`
	ChainID          string `yaml:"chain_id"`
	Contract         string `yaml:"contract"`
	ArtifactsDir     string `yaml:"artifacts_dir"`
	CallTimeout      int    `yaml:"call_timeout"` // seconds
	WaitMined        bool   `yaml:"wait_mined"`
	ReceiptInterval  string `yaml:"receipt_interval"` // cron spec
	MaxReceiptChecks int    `yaml:"max_receipt_checks"`
	ReceiptWorkers   int    `yaml:"receipt_workers"`
}

// QrcodeConfig defaults applied when a request does not specify them
type QrcodeConfig struct {
	Level   string `yaml:"level"` // low, medium, quartile, high
	BoxSize int    `yaml:"box_size"`
	Border  int    `yaml:"border"`
}

type AppConfig struct {
	System   SysConfig    `yaml:"system" json:"system"`
	Web      WebConfig    `yaml:"web" json:"web"`
	Database DBConfig     `yaml:"database" json:"database"`
	Logger   LogConfig    `yaml:"logger" json:"logger"`
	Chain    ChainConfig  `yaml:"chain" json:"chain"`
	Qrcode   QrcodeConfig `yaml:"qrcode" json:"qrcode"`
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

// GetLogFile returns Logger.Filename, defaulting to prodauth.log in the log dir
func (c *AppConfig) GetLogFile() string {
	if c.Logger.Filename != "" {
		return c.Logger.Filename
	}
	return path.Join(c.GetLogDir(), "prodauth.log")
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetMetricsDir() string {
	return path.Join(c.System.Workdir, "data", "metrics")
}

// ProviderURL returns the RPC endpoint with credentials substituted
func (c *AppConfig) ProviderURL() string {
	r := strings.NewReplacer(
		"{project_id}", c.Chain.ProjectID,
		"{api_secret}", c.Chain.APISecret,
	)
	return r.Replace(c.Chain.RPCURL)
}

func (c *AppConfig) initDirs() {
	_ = os.MkdirAll(c.GetLogDir(), 0755)
	_ = os.MkdirAll(c.GetDataDir(), 0755)
	_ = os.MkdirAll(c.GetMetricsDir(), 0755)
}

// String renders the config as yaml with secrets masked
func (c *AppConfig) String() string {
	cp := *c
	cp.Database.Passwd = mask(cp.Database.Passwd)
	cp.Chain.APISecret = mask(cp.Chain.APISecret)
	bs, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Sprintf("config marshal error: %s", err)
	}
	return string(bs)
}

func mask(s string) string {
	if s == "" {
		return s
	}
	return "******"
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:         "ProdAuth",
		Location:      "UTC",
		Workdir:       "/var/prodauth",
		Debug:         true,
		TxHistoryDays: 365,
	},
	Web: WebConfig{
		Host:    "0.0.0.0",
		Port:    8501,
		BodyMax: "8M",
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "prodauth.db",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
		Debug:    false,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "",
	},
	Chain: ChainConfig{
		RPCURL:           "https://:{api_secret}@ropsten.infura.io/v3/{project_id}",
		ChainID:          "3",
		Contract:         "ProdAuth",
		ArtifactsDir:     "artifacts",
		CallTimeout:      60,
		WaitMined:        false,
		ReceiptInterval:  "@every 15s",
		MaxReceiptChecks: 240,
		ReceiptWorkers:   16,
	},
	Qrcode: QrcodeConfig{
		Level:   "low",
		BoxSize: 10,
		Border:  4,
	},
}

func setEnvValue(name string, val *string) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

func setEnvIntValue(name string, val *int) {
	var evalue = os.Getenv(name)
	if evalue == "" {
		return
	}
	if v, err := cast.ToIntE(evalue); err == nil {
		*val = v
	}
}

// LoadConfig reads cfile (or the default locations) and applies environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	if cfile == "" {
		cfile = "prodauth.yml"
	}
	if !fileExists(cfile) {
		cfile = "/etc/prodauth.yml"
	}
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if fileExists(cfile) {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfile, err)
		}
	}

	applyEnv(cfg)
	cfg.initDirs()
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("PRODAUTH_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvBoolValue("PRODAUTH_SYSTEM_DEBUG", &cfg.System.Debug)
	setEnvIntValue("PRODAUTH_SYSTEM_TX_HISTORY_DAYS", &cfg.System.TxHistoryDays)

	// WEB
	setEnvValue("PRODAUTH_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("PRODAUTH_WEB_PORT", &cfg.Web.Port)

	// DB
	setEnvValue("PRODAUTH_DB_TYPE", &cfg.Database.Type)
	setEnvValue("PRODAUTH_DB_HOST", &cfg.Database.Host)
	setEnvValue("PRODAUTH_DB_NAME", &cfg.Database.Name)
	setEnvValue("PRODAUTH_DB_USER", &cfg.Database.User)
	setEnvValue("PRODAUTH_DB_PWD", &cfg.Database.Passwd)
	setEnvIntValue("PRODAUTH_DB_PORT", &cfg.Database.Port)
	setEnvBoolValue("PRODAUTH_DB_DEBUG", &cfg.Database.Debug)

	// Logger
	setEnvValue("PRODAUTH_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("PRODAUTH_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)

	// Chain. The WEB3_* names are the ones used by existing .env files.
	setEnvValue("WEB3_INFURA_PROJECT_ID", &cfg.Chain.ProjectID)
	setEnvValue("WEB3_INFURA_API_SECRET", &cfg.Chain.APISecret)
	setEnvValue("PRODAUTH_CHAIN_RPC_URL", &cfg.Chain.RPCURL)
	setEnvValue("PRODAUTH_CHAIN_ID", &cfg.Chain.ChainID)
	setEnvValue("PRODAUTH_CHAIN_CONTRACT", &cfg.Chain.Contract)
	setEnvValue("PRODAUTH_CHAIN_ARTIFACTS_DIR", &cfg.Chain.ArtifactsDir)
	setEnvBoolValue("PRODAUTH_CHAIN_WAIT_MINED", &cfg.Chain.WaitMined)

	// Qrcode
	setEnvValue("PRODAUTH_QRCODE_LEVEL", &cfg.Qrcode.Level)
	setEnvIntValue("PRODAUTH_QRCODE_BOX_SIZE", &cfg.Qrcode.BoxSize)
	setEnvIntValue("PRODAUTH_QRCODE_BORDER", &cfg.Qrcode.Border)
}

func fileExists(file string) bool {
	info, err := os.Stat(file)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
