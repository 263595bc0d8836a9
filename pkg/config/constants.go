package config

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "PRODLENS_DB_DSN"
	EnvDBHost = "PRODLENS_DB_HOST"
	EnvDBUser = "PRODLENS_DB_USER"
	EnvDBName = "PRODLENS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
