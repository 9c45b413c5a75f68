package config

const (
	EnvPrefix = "mowi"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MOWI_DB_DSN"
	EnvDBHost = "MOWI_DB_HOST"
	EnvDBUser = "MOWI_DB_USER"
	EnvDBName = "MOWI_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
