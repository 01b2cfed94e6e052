package pool

import (
	"fmt"
	"sort"
	"time"
)

// Options configures a Pool. Zero values mean "not set": no size limit,
// no minimum, no idle expiry, and a wait queue bounded only by the context.
type Options struct {
	MaxPoolSize        int `yaml:"maxPoolSize"`
	MinPoolSize        int `yaml:"minPoolSize"`
	MaxIdleTimeMS      int `yaml:"maxIdleTimeMS"`
	WaitQueueTimeoutMS int `yaml:"waitQueueTimeoutMS"`

	// MaintenanceInterval is how often the background goroutine tops the pool
	// up to MinPoolSize. Defaults to 50ms.
	MaintenanceInterval time.Duration `yaml:"-"`

	// Dial, when set, is called for every new connection. A non-nil error
	// closes the connection with reason "error" and fails the checkout.
	Dial func(address string, id int64) error `yaml:"-"`

	// Now overrides the wall clock used for idle expiry.
	Now func() time.Time `yaml:"-"`
}

// OptionsFromMap builds Options from a scenario "poolOptions" mapping.
// Unknown keys and non-integral values are rejected.
func OptionsFromMap(m map[string]any) (Options, error) {
	var opts Options

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		n, err := toInt(m[k])
		if err != nil {
			return Options{}, fmt.Errorf("pool option %q: %w", k, err)
		}
		if n < 0 {
			return Options{}, fmt.Errorf("pool option %q: must be non-negative, got %d", k, n)
		}
		switch k {
		case "maxPoolSize":
			opts.MaxPoolSize = n
		case "minPoolSize":
			opts.MinPoolSize = n
		case "maxIdleTimeMS":
			opts.MaxIdleTimeMS = n
		case "waitQueueTimeoutMS":
			opts.WaitQueueTimeoutMS = n
		default:
			return Options{}, fmt.Errorf("unknown pool option %q", k)
		}
	}

	if opts.MaxPoolSize > 0 && opts.MinPoolSize > opts.MaxPoolSize {
		return Options{}, fmt.Errorf("minPoolSize (%d) exceeds maxPoolSize (%d)", opts.MinPoolSize, opts.MaxPoolSize)
	}

	return opts, nil
}

// Map returns the options that differ from their defaults, keyed by the
// scenario spelling. This is the payload of ConnectionPoolCreated.
func (o Options) Map() map[string]any {
	m := make(map[string]any)
	if o.MaxPoolSize != 0 {
		m["maxPoolSize"] = o.MaxPoolSize
	}
	if o.MinPoolSize != 0 {
		m["minPoolSize"] = o.MinPoolSize
	}
	if o.MaxIdleTimeMS != 0 {
		m["maxIdleTimeMS"] = o.MaxIdleTimeMS
	}
	if o.WaitQueueTimeoutMS != 0 {
		m["waitQueueTimeoutMS"] = o.WaitQueueTimeoutMS
	}
	return m
}

func (o Options) maxIdle() time.Duration {
	return time.Duration(o.MaxIdleTimeMS) * time.Millisecond
}

func (o Options) waitQueueTimeout() time.Duration {
	return time.Duration(o.WaitQueueTimeoutMS) * time.Millisecond
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
