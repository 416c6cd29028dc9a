package models

// RedisConfig holds the connection settings for the cooldown store
type RedisConfig struct {
	URL      string `yaml:"url,omitempty" json:"url,omitzero"` // Takes precedence over discrete fields
	Addr     string `yaml:"addr,omitempty" json:"addr,omitzero"`
	Password string `yaml:"password,omitempty" json:"password,omitzero"`
	DB       int    `yaml:"db,omitempty" json:"db,omitzero"`
}
