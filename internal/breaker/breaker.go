/*
Copyright 2025 Quanta Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package breaker

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker fails fast without touching the
// network. Callers treat it like any other transient submission failure.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes one breaker. A breaker trips when the rolling failure ratio
// exceeds FailureRatio over at least MinRequests samples, stays OPEN for
// Cooldown, then allows one trial call in HALF-OPEN.
type Config struct {
	FailureRatio float64
	MinRequests  uint32
	Cooldown     time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureRatio: 0.5,
		MinRequests:  5,
		Cooldown:     30 * time.Second,
	}
}

// Breaker wraps submission calls for a single ledger identity, so one
// failing organization cannot exhaust worker capacity in retry storms.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(name string, cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. While OPEN it returns ErrOpen without
// invoking fn.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return out, err
}

// State exposes the underlying breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
