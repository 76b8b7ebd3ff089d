package domain

import "time"

type StorageBackend string

const (
	StorageBackendChain StorageBackend = "chain"
	StorageBackendFile  StorageBackend = "file"
	StorageBackendPass  StorageBackend = "pass"
	StorageBackendRedis StorageBackend = "redis"
)

func (b StorageBackend) Valid() bool {
	switch b {
	case StorageBackendChain, StorageBackendFile, StorageBackendPass, StorageBackendRedis:
		return true
	default:
		return false
	}
}

type Settings struct {
	AuthBaseURL         string
	PDFBaseURL          string
	DictionaryBaseURL   string
	AbbreviationBaseURL string
	Storage             StorageSettings
	Redis               RedisSettings
	HTTPTimeout         time.Duration
	LogLevel            string
	LogFormat           string
}

type StorageSettings struct {
	Backend StorageBackend
	Dir     string
}

type RedisSettings struct {
	Addr     string
	Password string
	DB       int
}
