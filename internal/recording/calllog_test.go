package recording

import "testing"

func TestCallLogKey_IncludesRootCallID(t *testing.T) {
	got := callLogKey("root-123")
	want := "call-log:root-123"
	if got != want {
		t.Fatalf("callLogKey() = %q, want %q", got, want)
	}
}
