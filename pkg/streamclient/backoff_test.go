package streamclient

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBackoffDelaySequence(t *testing.T) {
	b := Backoff{Base: 1 * time.Second, Cap: 30 * time.Second}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := b.Delay(attempt); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff

	if got := b.Delay(0); got != DefaultBackoffBase {
		t.Errorf("zero-value first delay = %v, want %v", got, DefaultBackoffBase)
	}
	if got := b.Delay(100); got != DefaultBackoffCap {
		t.Errorf("zero-value capped delay = %v, want %v", got, DefaultBackoffCap)
	}
	if got := b.Delay(-3); got != DefaultBackoffBase {
		t.Errorf("negative attempt delay = %v, want %v", got, DefaultBackoffBase)
	}
}

func TestBackoffProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("delays never exceed the cap", prop.ForAll(
		func(attempt int) bool {
			b := Backoff{Base: 250 * time.Millisecond, Cap: 10 * time.Second}
			return b.Delay(attempt) <= 10*time.Second
		},
		gen.IntRange(0, 1<<20),
	))

	properties.Property("delays are non-decreasing in the attempt number", prop.ForAll(
		func(attempt int) bool {
			b := Backoff{Base: 1 * time.Second, Cap: 30 * time.Second}
			return b.Delay(attempt) <= b.Delay(attempt+1)
		},
		gen.IntRange(0, 200),
	))

	properties.Property("uncapped delays double exactly", prop.ForAll(
		func(attempt int) bool {
			b := Backoff{Base: 1 * time.Second, Cap: 30 * time.Second}
			next := b.Delay(attempt + 1)
			if next >= b.Cap {
				return true
			}
			return next == 2*b.Delay(attempt)
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
