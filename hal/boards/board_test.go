package boards

import "testing"

func TestByName(t *testing.T) {
	b, ok := ByName("esp32s3")
	if !ok || !b.HasQSPI(2) || b.HasQSPI(4) {
		t.Fatalf("esp32s3 descriptor mismatch: %+v", b)
	}
	if !b.HasPin(47) || b.HasPin(49) {
		t.Fatal("esp32s3 pin range mismatch")
	}
	if b, ok := ByName(""); !ok || b.Name != "host" {
		t.Fatal("empty name should resolve to host")
	}
	if _, ok := ByName("nope"); ok {
		t.Fatal("unknown board resolved")
	}
}
