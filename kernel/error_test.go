package kernel

import "testing"

func TestErrorFormatsModuleAndMessage(t *testing.T) {
	err := &Error{Module: "pmm", Message: "no free frames"}

	if got, want := err.Error(), "[pmm] no free frames"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
