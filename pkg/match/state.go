package match

import (
	"fmt"
	"strings"

	"github.com/macropower/prodmatch/pkg/yaml"
)

// State is the phase of a matching cycle.
type State int32

const (
	StateNotStarted State = iota
	StateLoading
	StateIndexing
	StateClassifying
	StatePartitioned
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateLoading:
		return "loading"
	case StateIndexing:
		return "indexing"
	case StateClassifying:
		return "classifying"
	case StatePartitioned:
		return "partitioned"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// ErrorPolicy controls what happens when the oracle or classifier fails
// for a product.
type ErrorPolicy string

const (
	// ErrorPolicyIsolate records the product as unmatched with the error
	// as its reason and continues with the next product.
	ErrorPolicyIsolate ErrorPolicy = "isolate"
	// ErrorPolicyAbort aborts the whole cycle.
	ErrorPolicyAbort ErrorPolicy = "abort"
)

// Config configures the [Engine].
type Config struct {
	// OnOracleError is either "isolate" or "abort".
	OnOracleError ErrorPolicy `json:"onOracleError,omitempty" jsonschema:"title=On Oracle Error,enum=isolate,enum=abort"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.OnOracleError == "" {
		c.OnOracleError = ErrorPolicyIsolate
	}
}

func (c *Config) Validate() error {
	switch c.OnOracleError {
	case ErrorPolicyIsolate, ErrorPolicyAbort:
		return nil
	}

	return yaml.NewError(
		fmt.Errorf("invalid error policy %q, expected one of: %s",
			c.OnOracleError, strings.Join([]string{string(ErrorPolicyIsolate), string(ErrorPolicyAbort)}, ", ")),
		yaml.WithPath(yaml.NewPathBuilder().Root().Child("engine").Child("onOracleError").Build()),
	)
}
