package config

import "time"

// DefaultUserAgent mimics the kubectl client the cluster API is used to seeing.
const DefaultUserAgent = "kubectl/v1.32.4 (linux/amd64) kubernetes/2917b10"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	DatabaseURL        string
	MigrationsDir      string
	AutoMigrate        bool
	JWTSecret          string
	SessionCookieName  string
	EnvEncryptionKey   string
	DeepflowURL        string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	Cluster   ClusterConfig
	MCPServer MCPServerConfig
}

// ClusterConfig describes how to reach the MCPServer custom resource API.
type ClusterConfig struct {
	Host           string
	BearerToken    string
	Namespace      string
	Group          string
	Version        string
	Resource       string
	UserAgent      string
	CAFile         string
	Kubeconfig     string
	RequestTimeout time.Duration
	MaxRedirects   int
}

// MCPServerConfig holds lifecycle defaults applied to every created server.
type MCPServerConfig struct {
	Port              int
	Transport         string
	PermissionProfile string
	DefaultCPU        string
	DefaultMemory     string
	PolicyFile        string
	PollInterval      time.Duration
	PollAttempts      int
	PollBuffer        time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":5190"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://mcpforge:mcpforge@db:5432/mcpforge?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", ""),
		AutoMigrate:        GetBool("DB_AUTO_MIGRATE", true),
		JWTSecret:          GetString("JWT_SECRET", ""),
		SessionCookieName:  GetString("SESSION_COOKIE_NAME", "token"),
		EnvEncryptionKey:   GetString("ENV_ENCRYPTION_KEY", ""),
		DeepflowURL:        GetString("DEEPFLOW_SERVICE_URL", ""),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		Cluster: ClusterConfig{
			Host:           GetString("K8S_API_HOST", ""),
			BearerToken:    GetString("K8S_BEARER_TOKEN", ""),
			Namespace:      GetString("K8S_NAMESPACE", "toolhive-system"),
			Group:          GetString("K8S_API_GROUP", "toolhive.stacklok.dev"),
			Version:        GetString("K8S_API_VERSION", "v1alpha1"),
			Resource:       GetString("K8S_RESOURCE", "mcpservers"),
			UserAgent:      GetString("K8S_USER_AGENT", DefaultUserAgent),
			CAFile:         GetString("K8S_CA_FILE", ""),
			Kubeconfig:     GetString("KUBECONFIG", ""),
			RequestTimeout: GetSeconds("K8S_REQUEST_TIMEOUT_SECONDS", 10),
			MaxRedirects:   GetInt("K8S_MAX_REDIRECTS", 5),
		},
		MCPServer: MCPServerConfig{
			Port:              GetInt("MCPSERVER_PORT", 8080),
			Transport:         GetString("MCPSERVER_TRANSPORT", "stdio"),
			PermissionProfile: GetString("MCPSERVER_PERMISSION_PROFILE", "network"),
			DefaultCPU:        GetString("MCPSERVER_DEFAULT_CPU", "1"),
			DefaultMemory:     GetString("MCPSERVER_DEFAULT_MEMORY", "2Gi"),
			PolicyFile:        GetString("MCPSERVER_POLICY_FILE", ""),
			PollInterval:      GetSeconds("MCPSERVER_POLL_INTERVAL_SECONDS", 2),
			PollAttempts:      GetInt("MCPSERVER_POLL_ATTEMPTS", 60),
			PollBuffer:        GetSeconds("MCPSERVER_POLL_BUFFER_SECONDS", 10),
		},
	}
}
