package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
)

// Config holds the attendance server's runtime configuration.  Each field
// corresponds to an environment variable.
type Config struct {
    Env             string // application environment (e.g. "dev", "prod")
    Port            string // HTTP port to listen on
    DBUser          string // database username
    DBPass          string // database password (optional)
    DBHost          string // database host address
    DBPort          string // database port number
    DBName          string // database name
    JWTSecret       string // secret used to sign JWTs
    AccessTTLMin    int    // admin access token time‑to‑live in minutes
    KioskTTLMin     int    // downgraded kiosk token time‑to‑live in minutes
    RefreshTTLDays  int    // refresh token time‑to‑live in days
    BcryptCost      int    // bcrypt cost for password hashing
    AutoMigrate     bool   // create missing tables at startup
    RabbitURL       string // broker URL for visit events; empty disables publishing
    VisitLogDir     string // directory the visit consumer appends to
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        KioskTTLMin:    envInt("KIOSK_TOKEN_TTL_MIN", 12*60),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),
        AutoMigrate:    envBool("DB_AUTO_MIGRATE", false),
        RabbitURL:      RabbitURL(),
        VisitLogDir:    envStr("VISIT_LOG_DIR", "logs"),
    }
}

// RabbitURL returns the broker URL from RABBITMQ_URL or AMQP_URL.  It is
// empty when neither is set, which disables visit events.
func RabbitURL() string {
    if url := os.Getenv("RABBITMQ_URL"); url != "" {
        return url
    }
    return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
