package globals

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DevJwtSecret signs tokens when JWT_SECRET is unset. Only the memory
// backend accepts it.
const DevJwtSecret = "change_me_in_env"

var (
	JwtSecret = []byte(DevJwtSecret)
)

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"

var Ctx = context.Background()

type Config struct {
	Port              string
	JwtSecretSet      bool
	StoreBackend      string
	SeedFile          string
	MongoURI          string
	MongoDB           string
	RedisURL          string
	RedisPassword     string
	EventsChannel     string
	StrictTransitions bool
	RequestTimeout    time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
}

// LoadConfig reads .env (if present) and the process environment.
// It also installs JWT_SECRET as the token signing key.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	cfg := Config{
		Port:              getenv("PORT", ":8080"),
		StoreBackend:      getenv("STORE_BACKEND", "mongo"),
		SeedFile:          os.Getenv("SEED_FILE"),
		MongoURI:          getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getenv("MONGO_DB", "marketplace"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		EventsChannel:     getenv("EVENTS_CHANNEL", "marketplace-events"),
		StrictTransitions: getbool("ORDER_STRICT_TRANSITIONS", false),
		RequestTimeout:    getduration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:      getfloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    int(getfloat("RATE_LIMIT_BURST", 10)),
	}
	if cfg.Port[0] != ':' {
		cfg.Port = ":" + cfg.Port
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		JwtSecret = []byte(secret)
		cfg.JwtSecretSet = true
	} else {
		JwtSecret = []byte(DevJwtSecret)
		log.Println("JWT_SECRET not set; using the development signing key")
	}
	return cfg
}

// Validate rejects settings the server must not start with. The development
// signing key is public, so anything but the memory backend needs JWT_SECRET.
func (c Config) Validate() error {
	if !c.JwtSecretSet && c.StoreBackend != "memory" {
		return errors.New("JWT_SECRET must be set unless STORE_BACKEND=memory")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getfloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
