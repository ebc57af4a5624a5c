package core

import (
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the app configuration from the environment.
// An optional config/.env.<env> file under the project root is loaded first if present.
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "AskUp")
	v.SetDefault("secretKey", "o&cu$=fikp0mln-vkp3b%2a!n$jlw*#l8$8t2ly8#^04yg@x+s")
	v.SetDefault("build", "dev")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("serverHost", "0.0.0.0")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("debugHost", "0.0.0.0:4000")
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "askup")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbDisableTLS", true)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          wd,
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		DefaultFromEmail: mail.Address{Address: v.GetString("defaultFromEmail")},
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetString("serverPort"),
			DebugHost:                 v.GetString("debugHost"),
			ShutdownTimeout:           v.GetDuration("shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Name:          v.GetString("dbName"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
	}
	return conf, nil
}
