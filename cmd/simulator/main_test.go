package main

import (
	"math/rand"
	"testing"
)

func TestGenerateReadingRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tempSpikes, voltSpikes := 0, 0

	for i := 0; i < 2000; i++ {
		r := generateReading(rng)
		if len(r) != 5 {
			t.Fatalf("expected 5 metrics, got %v", r)
		}
		if v := r["temperature"]; v < 20 || v > 40 {
			t.Errorf("temperature out of range: %v", v)
		} else if v > 30 {
			tempSpikes++
		}
		if v := r["voltage"]; v < 220 || v > 290 {
			t.Errorf("voltage out of range: %v", v)
		} else if v > 240 {
			voltSpikes++
		}
		if v := r["humidity"]; v < 40 || v > 90 {
			t.Errorf("humidity out of range: %v", v)
		}
		if v := r["current"]; v < 1 || v > 5 {
			t.Errorf("current out of range: %v", v)
		}
		if v := r["pressure"]; v < 980 || v > 1020 {
			t.Errorf("pressure out of range: %v", v)
		}
	}

	// roughly 1 in 4 and 1 in 5
	if tempSpikes < 300 || tempSpikes > 700 {
		t.Errorf("temperature spikes = %d of 2000", tempSpikes)
	}
	if voltSpikes < 250 || voltSpikes > 550 {
		t.Errorf("voltage spikes = %d of 2000", voltSpikes)
	}
}

func TestRound2(t *testing.T) {
	if got := round2(21.456); got != 21.46 {
		t.Errorf("round2 = %v", got)
	}
}
