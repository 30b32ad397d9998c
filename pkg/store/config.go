package store

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config locates the document store.
type Config interface {
	BasePath() string
}

// ObjectConfig locates the object store and controls URL signing.
type ObjectConfig interface {
	ObjectsPath() string
	SigningKey() []byte
	PublicURL() string
	URLTTL() time.Duration
}

// watchConfig is implemented by configs that want external writers
// followed through fsnotify.
type watchConfig interface {
	WatchExternal() bool
}

// LoadConfig reads .shopdesk.yaml and SHOPDESK_* environment variables.
func LoadConfig() (*FileConfig, error) {
	viper.SetDefault("path", "~/.shopdesk.db")
	viper.SetDefault("objects", "~/.shopdesk.objects")
	viper.SetDefault("public_url", "http://127.0.0.1:8090")
	viper.SetDefault("url_ttl", 15*time.Minute)
	viper.SetDefault("watch", true)
	viper.SetConfigName(".shopdesk") // .yaml is implicit
	viper.SetEnvPrefix("SHOPDESK")
	viper.AutomaticEnv()

	if override := os.Getenv("SHOPDESK_CONFIG_PATH"); override != "" {
		viper.AddConfigPath(override)
	}

	viper.AddConfigPath("./")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("store: read config: %w", err)
		}
	}

	path, err := homedir.Expand(viper.GetString("path"))
	if err != nil {
		return nil, fmt.Errorf("store: expand path: %w", err)
	}
	objects, err := homedir.Expand(viper.GetString("objects"))
	if err != nil {
		return nil, fmt.Errorf("store: expand objects path: %w", err)
	}

	return &FileConfig{
		Path:    path,
		Objects: objects,
		Key:     viper.GetString("signing_key"),
		URL:     viper.GetString("public_url"),
		TTL:     viper.GetDuration("url_ttl"),
		Watch:   viper.GetBool("watch"),
	}, nil
}

// FileConfig is the resolved configuration.
type FileConfig struct {
	Path    string        `json:"path"`
	Objects string        `json:"objects"`
	Key     string        `json:"-"`
	URL     string        `json:"public_url"`
	TTL     time.Duration `json:"url_ttl"`
	Watch   bool          `json:"watch"`
}

func (f *FileConfig) BasePath() string {
	return f.Path
}

func (f *FileConfig) ObjectsPath() string {
	return f.Objects
}

func (f *FileConfig) SigningKey() []byte {
	return []byte(f.Key)
}

func (f *FileConfig) PublicURL() string {
	return f.URL
}

func (f *FileConfig) URLTTL() time.Duration {
	return f.TTL
}

func (f *FileConfig) WatchExternal() bool {
	return f.Watch
}
