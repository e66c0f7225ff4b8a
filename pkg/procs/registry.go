package procs

import (
	"net/url"
	"sort"
	"sync"

	"github.com/bluenviron/gaclient/internal/logger"
	"github.com/bluenviron/gaclient/pkg/liberrors"
)

// Params are the parameters passed to a Factory.
type Params struct {
	// processor settings.
	Settings Settings

	// writer prefixed with the processor name and id.
	Log logger.Writer
}

// Factory allocates a processor.
type Factory func(p Params) (Processor, error)

var (
	factoriesMutex sync.RWMutex
	factories      = map[string]Factory{}
)

// Register registers a processor factory.
func Register(name string, f Factory) error {
	factoriesMutex.Lock()
	defer factoriesMutex.Unlock()

	if _, ok := factories[name]; ok {
		return liberrors.ErrProcessorAlreadyRegistered{Name: name}
	}

	factories[name] = f
	return nil
}

// MustRegister is like Register but panics in case of error.
// It is meant to be called from init functions.
func MustRegister(name string, f Factory) {
	err := Register(name, f)
	if err != nil {
		panic(err)
	}
}

// Registered returns the names of registered processors, sorted.
func Registered() []string {
	factoriesMutex.RLock()
	defer factoriesMutex.RUnlock()

	ret := make([]string, 0, len(factories))
	for name := range factories {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

func lookup(name string) (Factory, bool) {
	factoriesMutex.RLock()
	defer factoriesMutex.RUnlock()
	f, ok := factories[name]
	return f, ok
}

func parseSettings(s string) (Settings, error) {
	v, err := url.ParseQuery(s)
	if err != nil {
		return Settings{}, err
	}
	return Settings{v}, nil
}
