package pmm

import "testing"

func TestSwapPoolAllocFreeRoundTrip(t *testing.T) {
	p := NewSwapPool()
	if got, want := p.FreeCount(), S; got != want {
		t.Fatalf("FreeCount() = %d, want %d", got, want)
	}

	s, err := p.Alloc(3)
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if got, want := p.FreeCount(), S-1; got != want {
		t.Fatalf("FreeCount() after Alloc = %d, want %d", got, want)
	}

	frame := p.Frame(s)
	frame[0] = 'A'
	if p.Frame(s)[0] != 'A' {
		t.Fatal("Frame() must return the same backing storage across calls")
	}

	p.Free(s)
	if got, want := p.FreeCount(), S; got != want {
		t.Fatalf("FreeCount() after Free = %d, want %d", got, want)
	}
}

func TestSwapPoolUsedByCountsOnlyOwnedSlots(t *testing.T) {
	p := NewSwapPool()
	a1, _ := p.Alloc(9)
	_, _ = p.Alloc(10)

	if got, want := p.UsedBy(9), 1; got != want {
		t.Fatalf("UsedBy(9) = %d, want %d", got, want)
	}

	p.Free(a1)
	if got, want := p.UsedBy(9), 0; got != want {
		t.Fatalf("UsedBy(9) after Free = %d, want %d", got, want)
	}
}

func TestSwapPoolReleaseAll(t *testing.T) {
	p := NewSwapPool()
	_, _ = p.Alloc(1)
	_, _ = p.Alloc(1)
	_, _ = p.Alloc(2)

	released := p.ReleaseAll(1)
	if released != 2 {
		t.Fatalf("ReleaseAll(1) = %d, want 2", released)
	}
	if got, want := p.UsedBy(1), 0; got != want {
		t.Fatalf("UsedBy(1) after ReleaseAll = %d, want %d", got, want)
	}
	if got, want := p.UsedBy(2), 1; got != want {
		t.Fatalf("UsedBy(2) after unrelated ReleaseAll = %d, want %d", got, want)
	}
}
