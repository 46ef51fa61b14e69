package connector

import (
	"encoding/json"
	"fmt"
)

const (
	TypeFTP  = "ftp"
	TypeHTTP = "http"
	TypeTCP  = "tcp"
	// TypeAPI is an alias of TypeHTTP: same connector, same validation.
	TypeAPI    = "api"
	TypeUpload = "upload"
)

// Types lists the source types accepted by the ingest operation.
func Types() []string {
	return []string{TypeFTP, TypeHTTP, TypeTCP, TypeAPI}
}

// Config is the tagged union of per-protocol source configurations. Exactly
// one variant is set, selected by Type. ParseConfig validates the required
// fields before any connector is constructed or any network attempt is made.
type Config struct {
	Type string
	FTP  *FTPConfig
	HTTP *HTTPConfig
	TCP  *TCPConfig
}

type FTPConfig struct {
	Host     string `json:"host"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Port     int    `json:"port,omitempty"`
	FilePath string `json:"file_path"`
	UseTLS   bool   `json:"use_tls,omitempty"`
	Timeout  int    `json:"timeout,omitempty"`
}

type HTTPConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Auth      *AuthConfig       `json:"auth,omitempty"`
	Filename  string            `json:"filename,omitempty"`
	VerifySSL *bool             `json:"verify_ssl,omitempty"`
	Timeout   int               `json:"timeout,omitempty"`
}

// AuthConfig selects an authentication variant: bearer, basic or api_key.
type AuthConfig struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	KeyName  string `json:"key_name,omitempty"`
	KeyValue string `json:"key_value,omitempty"`
}

type TCPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	SendData   string `json:"send_data,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
	ExpectSize int    `json:"expect_size,omitempty"`
	Delimiter  string `json:"delimiter,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// ParseConfig decodes the raw per-source configuration for sourceType and
// checks its required fields. It returns plain errors; the orchestrator maps
// them to client-facing validation failures.
func ParseConfig(sourceType string, raw json.RawMessage) (*Config, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch sourceType {
	case TypeFTP:
		var cfg FTPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid ftp config: %w", err)
		}
		if cfg.Host == "" || cfg.FilePath == "" {
			return nil, fmt.Errorf("ftp config requires: host, file_path")
		}
		return &Config{Type: TypeFTP, FTP: &cfg}, nil

	case TypeHTTP, TypeAPI:
		var cfg HTTPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", sourceType, err)
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("%s config requires: url", sourceType)
		}
		return &Config{Type: TypeHTTP, HTTP: &cfg}, nil

	case TypeTCP:
		var cfg TCPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("invalid tcp config: %w", err)
		}
		if cfg.Host == "" || cfg.Port == 0 {
			return nil, fmt.Errorf("tcp config requires: host, port")
		}
		return &Config{Type: TypeTCP, TCP: &cfg}, nil
	}

	return nil, fmt.Errorf("invalid source_type: %s", sourceType)
}
