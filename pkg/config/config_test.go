package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORAGE_DRIVER", "local")

	cfg, err := Load("magazyn")
	require.NoError(t, err)

	assert.Equal(t, "magazyn", cfg.ServiceName)
	assert.Equal(t, StoreDriverFile, cfg.Store.Driver)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, "/uploads", cfg.Storage.PublicPath)
	assert.Positive(t, cfg.JWT.ExpirationHours)
}

func TestLoad_RejectsUnknownDrivers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load("magazyn")
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORAGE_DRIVER", "ftp")
	_, err = Load("magazyn")
	assert.Error(t, err)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("STORAGE_BUCKET", "")
	t.Setenv("S3_BUCKET_NAME", "")
	_, err := Load("magazyn")
	assert.Error(t, err)

	t.Setenv("STORAGE_BUCKET", "images")
	cfg, err := Load("magazyn")
	require.NoError(t, err)
	assert.Equal(t, "images", cfg.Storage.Bucket)
}

func TestGetDSN_PrefersURL(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.GetDSN())

	c.URL = "postgres://u:p@db:5432/n"
	assert.Equal(t, "postgres://u:p@db:5432/n", c.GetDSN())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "nope")
	assert.Equal(t, 7, getEnvAsInt("TEST_INT", 7))

	t.Setenv("TEST_DURATION", "3s")
	assert.Equal(t, 3*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_LIST", " http://a.example/ , ,http://b.example")
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, getEnvAsList("TEST_LIST", nil))

	t.Setenv("TEST_LEVEL", "silent")
	assert.Equal(t, logger.Silent, getEnvAsLogLevel("TEST_LEVEL", logger.Info))
}
