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
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("ledger unreachable")

func TestBreaker_TripsAfterFailureRatio(t *testing.T) {
	b := New("test", Config{FailureRatio: 0.5, MinRequests: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (interface{}, error) { return nil, errDown })
		assert.ErrorIs(t, err, errDown)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Execute(func() (interface{}, error) {
		t.Fatal("breaker must not invoke fn while open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_StaysClosedBelowMinRequests(t *testing.T) {
	b := New("test", Config{FailureRatio: 0.5, MinRequests: 10, Cooldown: time.Minute})

	for i := 0; i < 5; i++ {
		_, _ = b.Execute(func() (interface{}, error) { return nil, errDown })
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := New("test", Config{FailureRatio: 0.5, MinRequests: 2, Cooldown: 50 * time.Millisecond})

	for i := 0; i < 2; i++ {
		_, _ = b.Execute(func() (interface{}, error) { return nil, errDown })
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(80 * time.Millisecond)

	// One trial call is let through; success closes the breaker.
	out, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := New("test", DefaultConfig())

	out, err := b.Execute(func() (interface{}, error) { return 42, nil })
	assert.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
