package config

// DefaultMaxDocumentBytes is the request body limit used when MaxDocumentBytes is not set.
const DefaultMaxDocumentBytes = 16 * 1024

// Settings contains the application config
type Settings struct {
	Environment string `yaml:"ENVIRONMENT"`
	LogLevel    string `yaml:"LOG_LEVEL"`
	Port        int    `yaml:"PORT"`
	MonPort     int    `yaml:"MON_PORT"`

	// MaxDocumentBytes limits the size of a verification request body.
	MaxDocumentBytes int `yaml:"MAX_DOCUMENT_BYTES"`
	// EnableEthAddress adds the Ethereum address of a secp256k1 public_key to verification responses.
	EnableEthAddress bool `yaml:"ENABLE_ETH_ADDRESS"`
}

// BodyLimit returns the request body limit in bytes.
func (s *Settings) BodyLimit() int {
	if s.MaxDocumentBytes <= 0 {
		return DefaultMaxDocumentBytes
	}
	return s.MaxDocumentBytes
}
