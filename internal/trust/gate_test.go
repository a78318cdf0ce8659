package trust

import (
	"context"
	"errors"
	"testing"
)

type fakeSource struct {
	scores map[string]int
	err    error
}

func (f *fakeSource) GetCallerTrust(ctx context.Context, callerID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[callerID], nil
}

func TestScore_Lookup(t *testing.T) {
	g := NewGate(&fakeSource{scores: map[string]int{"caller-1": 65}})

	score, err := g.Score(context.Background(), "caller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 65 {
		t.Errorf("expected score 65, got %d", score)
	}
}

func TestScore_ClampsOutOfRange(t *testing.T) {
	g := NewGate(&fakeSource{scores: map[string]int{"over": 150, "under": -20}})

	score, err := g.Score(context.Background(), "over")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 100 {
		t.Errorf("expected clamped score 100, got %d", score)
	}

	score, err = g.Score(context.Background(), "under")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected clamped score 0, got %d", score)
	}
}

func TestScore_SourceErrorPropagates(t *testing.T) {
	lookupErr := errors.New("identity service down")
	g := NewGate(&fakeSource{err: lookupErr})

	_, err := g.Score(context.Background(), "caller-1")
	if err == nil {
		t.Fatal("expected error from failing source")
	}
	if !errors.Is(err, lookupErr) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestScore_EmptyCallerID(t *testing.T) {
	g := NewGate(&fakeSource{})
	if _, err := g.Score(context.Background(), ""); err == nil {
		t.Error("expected error for empty caller id")
	}
}

func TestTier_Boundaries(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, TierBasic},
		{49, TierBasic},
		{50, TierStandard},
		{69, TierStandard},
		{70, TierPremium},
		{100, TierPremium},
	}
	for _, c := range cases {
		if got := Tier(c.score); got != c.want {
			t.Errorf("Tier(%d): expected %s, got %s", c.score, c.want, got)
		}
	}
}
