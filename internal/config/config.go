package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for welllog
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Upload    UploadConfig
	Parser    ParserConfig
	Storage   StorageConfig
	Catalog   CatalogConfig
	Archive   ArchiveConfig
	Database  DatabaseConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	MaxPayloadSize int64 // Maximum request body size in bytes
	// TLS Configuration
	TLSEnabled  bool   // Enable HTTPS/TLS
	TLSCertFile string // Path to TLS certificate file (PEM format)
	TLSKeyFile  string // Path to TLS private key file (PEM format)
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadConfig controls validation of uploaded LAS files and the default
// projection returned for them.
type UploadConfig struct {
	MaxFileSize       int64    // Largest accepted file, after decompression
	AllowedExtensions []string // Matched case-insensitively against the file name suffix
	DefaultMaxCurves  int      // max_curves when the request does not set it
	DefaultThin       int      // thin when the request does not set it
}

// ParserConfig maps onto las.Options.
type ParserConfig struct {
	Strict           bool
	UseNullValue     bool
	DefaultNullValue float64
	ValidateDepth    bool
}

type StorageConfig struct {
	Backend   string
	LocalPath string
	// S3/MinIO configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	S3AccessKey string // AWS access key (or use AWS_ACCESS_KEY_ID env var)
	S3SecretKey string // AWS secret key (or use AWS_SECRET_ACCESS_KEY env var)
	S3UseSSL    bool   // Use HTTPS for S3 connections
	S3PathStyle bool   // Use path-style addressing (required for MinIO)
	// Azure Blob Storage configuration
	AzureConnectionString   string // Connection string (simplest auth method)
	AzureAccountName        string // Storage account name
	AzureAccountKey         string // Storage account key
	AzureSASToken           string // SAS token for scoped access
	AzureContainer          string // Container name
	AzureEndpoint           string // Custom endpoint (for Azurite testing)
	AzureUseManagedIdentity bool   // Use managed identity (Azure-hosted deployments)
}

type CatalogConfig struct {
	Enabled bool
	DBPath  string // SQLite database path
}

type ArchiveConfig struct {
	Enabled         bool   // Write a Parquet copy of every uploaded log
	Compression     string // Parquet compression: snappy, gzip, zstd, none
	UseDictionary   bool
	WriteStatistics bool
}

type DatabaseConfig struct {
	MemoryLimit string
	ThreadCount int
	TempDir     string // Scratch directory for archives pulled from remote storage
}

type RetentionConfig struct {
	Enabled       bool
	Schedule      string // Cron schedule (default: "0 3 * * *" = 3am daily)
	MaxAgeHours   int    // Wells uploaded longer ago than this are purged
	MaxConcurrent int    // Wells purged in parallel
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("WELLLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("welllog")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/welllog/")
	v.AddConfigPath("$HOME/.welllog/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	maxPayloadSize, err := ParseSize(v.GetString("server.max_payload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.max_payload_size: %w", err)
	}
	maxFileSize, err := ParseSize(v.GetString("upload.max_file_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid upload.max_file_size: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetInt("server.read_timeout"),
			WriteTimeout:   v.GetInt("server.write_timeout"),
			MaxPayloadSize: maxPayloadSize,
			TLSEnabled:     v.GetBool("server.tls_enabled"),
			TLSCertFile:    v.GetString("server.tls_cert_file"),
			TLSKeyFile:     v.GetString("server.tls_key_file"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Upload: UploadConfig{
			MaxFileSize:       maxFileSize,
			AllowedExtensions: normalizeExtensions(v.GetStringSlice("upload.allowed_extensions")),
			DefaultMaxCurves:  v.GetInt("upload.default_max_curves"),
			DefaultThin:       v.GetInt("upload.default_thin"),
		},
		Parser: ParserConfig{
			Strict:           v.GetBool("parser.strict"),
			UseNullValue:     v.GetBool("parser.use_null_value"),
			DefaultNullValue: v.GetFloat64("parser.default_null_value"),
			ValidateDepth:    v.GetBool("parser.validate_depth"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			LocalPath:   v.GetString("storage.local_path"),
			S3Bucket:    v.GetString("storage.s3_bucket"),
			S3Region:    v.GetString("storage.s3_region"),
			S3Endpoint:  v.GetString("storage.s3_endpoint"),
			S3AccessKey: v.GetString("storage.s3_access_key"),
			S3SecretKey: v.GetString("storage.s3_secret_key"),
			S3UseSSL:    v.GetBool("storage.s3_use_ssl"),
			S3PathStyle: v.GetBool("storage.s3_path_style"),
			// Azure Blob Storage
			AzureConnectionString:   v.GetString("storage.azure_connection_string"),
			AzureAccountName:        v.GetString("storage.azure_account_name"),
			AzureAccountKey:         v.GetString("storage.azure_account_key"),
			AzureSASToken:           v.GetString("storage.azure_sas_token"),
			AzureContainer:          v.GetString("storage.azure_container"),
			AzureEndpoint:           v.GetString("storage.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("storage.azure_use_managed_identity"),
		},
		Catalog: CatalogConfig{
			Enabled: v.GetBool("catalog.enabled"),
			DBPath:  v.GetString("catalog.db_path"),
		},
		Archive: ArchiveConfig{
			Enabled:         v.GetBool("archive.enabled"),
			Compression:     v.GetString("archive.compression"),
			UseDictionary:   v.GetBool("archive.use_dictionary"),
			WriteStatistics: v.GetBool("archive.write_statistics"),
		},
		Database: DatabaseConfig{
			MemoryLimit: v.GetString("database.memory_limit"),
			ThreadCount: v.GetInt("database.thread_count"),
			TempDir:     v.GetString("database.temp_dir"),
		},
		Retention: RetentionConfig{
			Enabled:       v.GetBool("retention.enabled"),
			Schedule:      v.GetString("retention.schedule"),
			MaxAgeHours:   v.GetInt("retention.max_age_hours"),
			MaxConcurrent: v.GetInt("retention.max_concurrent"),
		},
	}

	if cfg.Retention.Enabled && !cfg.Catalog.Enabled {
		return nil, fmt.Errorf("retention.enabled requires catalog.enabled")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.max_payload_size", "200MB")
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Upload defaults
	v.SetDefault("upload.max_file_size", "100000000B") // 100 MB, decimal
	v.SetDefault("upload.allowed_extensions", []string{".las"})
	v.SetDefault("upload.default_max_curves", 40)
	v.SetDefault("upload.default_thin", 12)

	// Parser defaults (permissive)
	v.SetDefault("parser.strict", false)
	v.SetDefault("parser.use_null_value", true)
	v.SetDefault("parser.default_null_value", 0.0)
	v.SetDefault("parser.validate_depth", false)

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_path", "./data/welllog")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false) // Use virtual-hosted style by default (set true for MinIO)

	// Catalog defaults
	v.SetDefault("catalog.enabled", true)
	v.SetDefault("catalog.db_path", "./data/welllog.db")

	// Archive defaults
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.compression", "zstd")
	v.SetDefault("archive.use_dictionary", true)
	v.SetDefault("archive.write_statistics", true)

	// Database defaults
	v.SetDefault("database.memory_limit", getDefaultMemoryLimit())
	v.SetDefault("database.thread_count", runtime.NumCPU())
	v.SetDefault("database.temp_dir", os.TempDir())

	// Retention defaults
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("retention.max_age_hours", 720) // 30 days
	v.SetDefault("retention.max_concurrent", 4)
}

// normalizeExtensions lower-cases extensions and adds a missing leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func getDefaultMemoryLimit() string {
	// Statistics queries scan one well at a time, so DuckDB gets a small share
	// of an assumed ~2GB per core.
	targetMemGB := runtime.NumCPU() / 2
	if targetMemGB < 1 {
		return "1GB"
	}
	if targetMemGB > 8 {
		return "8GB"
	}
	return fmt.Sprintf("%dGB", targetMemGB)
}

// ValidateTLS validates TLS configuration when TLS is enabled.
// Returns nil if TLS is disabled or if configuration is valid.
func (cfg *ServerConfig) ValidateTLS() error {
	if !cfg.TLSEnabled {
		return nil
	}

	if cfg.TLSCertFile == "" {
		return fmt.Errorf("TLS enabled but server.tls_cert_file not specified")
	}
	if cfg.TLSKeyFile == "" {
		return fmt.Errorf("TLS enabled but server.tls_key_file not specified")
	}

	if err := checkFile("TLS certificate", cfg.TLSCertFile); err != nil {
		return err
	}
	return checkFile("TLS key", cfg.TLSKeyFile)
}

func checkFile(what, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s file not found: %s", what, path)
		}
		return fmt.Errorf("cannot access %s file %s: %w", what, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s path is a directory, not a file: %s", what, path)
	}
	return nil
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if !strings.HasSuffix(sizeStr, unit.suffix) {
			continue
		}
		numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

		var num float64
		var trailing string
		n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
		if n == 0 {
			return 0, fmt.Errorf("invalid size number: %s", numStr)
		}
		if trailing != "" {
			return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
		}
		if num < 0 {
			return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
		}
		return int64(num * float64(unit.multiplier)), nil
	}

	// Plain number of bytes
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
