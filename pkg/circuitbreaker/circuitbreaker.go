package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name string
	// MaxFailures is the consecutive failure count that opens the breaker.
	MaxFailures uint32
	// MaxRequests is allowed through while half-open.
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	OnChange    func(name string, from, to string)
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(s Settings) *CircuitBreaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	st := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.MaxFailures
		},
	}
	if s.OnChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnChange(name, from.String(), to.String())
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(st)}
}

func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}
