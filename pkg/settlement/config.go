package settlement

import "time"

const (
	ModeLedger = "ledger"
	ModeHTTP   = "http"
)

// Config holds settings for the settlement collaborator.
type Config struct {
	// Mode selects the in-process ledger or the HTTP settlement service.
	Mode string `yaml:"mode" split_words:"true"`
	// BaseURL is the HTTP endpoint of the settlement service, e.g. http://localhost:8545
	BaseURL string `yaml:"base_url" split_words:"true"`
	// Timeout bounds one whole call, including polling of pending receipts
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is the delay between status checks of a pending receipt
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
	// CircuitFailureThreshold opens circuit after this many consecutive failures
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" split_words:"true"`
	// CircuitReset is the duration after which the circuit attempts to half-open
	CircuitReset time.Duration `yaml:"circuit_reset" split_words:"true"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeLedger,
		BaseURL:                 "http://localhost:8545",
		Timeout:                 30 * time.Second,
		PollInterval:            time.Second,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}
