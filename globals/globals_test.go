package globals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ORDER_STRICT_TRANSITIONS", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("JWT_SECRET", "")

	cfg := LoadConfig()
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.False(t, cfg.StrictTransitions)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.False(t, cfg.JwtSecretSet)
	assert.Equal(t, []byte(DevJwtSecret), JwtSecret)
	assert.Error(t, cfg.Validate(), "mongo must not run on the development key")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ORDER_STRICT_TRANSITIONS", "true")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := LoadConfig()
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.True(t, cfg.StrictTransitions)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []byte("s3cret"), JwtSecret)
	assert.NoError(t, cfg.Validate())
}

func TestValidateSecret(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"memory on dev key", Config{StoreBackend: "memory"}, true},
		{"mongo on dev key", Config{StoreBackend: "mongo"}, false},
		{"mongo with secret", Config{StoreBackend: "mongo", JwtSecretSet: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
