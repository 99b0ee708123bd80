// Package backends defines the interface a kernel execution system needs to implement to
// have its numerics checked by the harness, and the registry where backends announce
// themselves.
//
// A backend does not have to support every kernel kind or dtype: it declares what it
// supports through Capabilities, and the sweep skips the combinations it does not claim.
// Whether a backend is present at all is a runtime property -- backends register
// themselves in an init(), typically triggered by an underscore import, and asking for an
// unregistered name yields an error wrapping ErrBackendUnavailable, which the sweep
// records as a skip.
//
// The two in-tree backends are backends/interp (scalar loops, the trusted reference) and
// backends/pargo (blocked, goroutine-parallel kernels).
package backends

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Backend is the API a kernel execution system implements to participate in sweeps.
//
// Implementations must be safe for concurrent use: the sweep runs cases in parallel
// against a single Backend instance.
type Backend interface {
	// Name returns the short name the backend was registered under. E.g.: "interp".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Capabilities returns what the backend supports. The caller owns the returned copy.
	Capabilities() Capabilities

	// Builder creates a new builder used to define a new named computation.
	Builder(name string) Builder

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

// ErrBackendUnavailable tags errors for backends that are not registered or cannot run a
// requested combination of kernel kind and dtypes. Callers classify with errors.Is and
// record a skip, never an abort.
var ErrBackendUnavailable = errors.New("backend unavailable")

var (
	registeredConstructors = make(map[string]Constructor)
	registrationOrder      []string
)

// Register backend with the given name, and a constructor that takes as input a
// configuration string that is passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if _, found := registeredConstructors[name]; !found {
		registrationOrder = append(registrationOrder, name)
	}
	registeredConstructors[name] = constructor
}

// Registered returns the names of the registered backends, in registration order.
func Registered() []string {
	names := make([]string, len(registrationOrder))
	copy(names, registrationOrder)
	return names
}

// IsRegistered returns whether a backend with the given name was registered.
func IsRegistered(name string) bool {
	_, found := registeredConstructors[name]
	return found
}

// DefaultConfig is the backend configuration to use if no environment variable overrides it.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// CROSSCHECK_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "interp") and
// "<backend_configuration>" is backend specific.
const CROSSCHECK_BACKEND = "CROSSCHECK_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment CROSSCHECK_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
//
// It returns an error wrapping ErrBackendUnavailable if no backend was registered.
func New() (Backend, error) {
	config, found := os.LookupEnv(CROSSCHECK_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig creates the backend described by the given configuration string.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "interp") and
// "<backend_configuration>" is backend specific. An empty name selects the first
// registered backend.
//
// An unknown name returns an error wrapping ErrBackendUnavailable.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Wrap(ErrBackendUnavailable,
			`no registered backends -- import one, e.g. import _ "github.com/gomlx/crosscheck/backends/interp"`)
	}
	backendName := registrationOrder[0]
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if config != "" {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Wrapf(ErrBackendUnavailable,
			"backend %q is not registered (registered backends: %s)",
			backendName, strings.Join(Registered(), ", "))
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "constructing backend %q with config %q", backendName, backendConfig)
	}
	return backend, nil
}

// MustNew is like NewWithConfig but panics on error. Meant for tests and tools.
func MustNew(config string) Backend {
	backend, err := NewWithConfig(config)
	if err != nil {
		panic(err)
	}
	return backend
}
