package uapi

import "testing"

func TestNextBulkTagSkipsZero(t *testing.T) {
	tag := byte(254)
	tag = NextBulkTag(tag)
	if tag != 255 {
		t.Fatalf("expected 255, got %d", tag)
	}
	tag = NextBulkTag(tag)
	if tag != 1 {
		t.Fatalf("expected wrap to 1 (skipping 0), got %d", tag)
	}
}

func TestNextBulkTagNeverZero(t *testing.T) {
	tag := byte(1)
	for i := 0; i < 1000; i++ {
		tag = NextBulkTag(tag)
		if tag == 0 {
			t.Fatalf("bulk tag hit 0 after %d iterations", i)
		}
	}
}

func TestNextIntrTagWraps(t *testing.T) {
	tag := byte(127)
	tag = NextIntrTag(tag)
	if tag != 2 {
		t.Fatalf("expected wrap to 2, got %d", tag)
	}
}

func TestNextIntrTagRange(t *testing.T) {
	tag := byte(2)
	for i := 0; i < 1000; i++ {
		tag = NextIntrTag(tag)
		if tag < IntrTagMin || tag > IntrTagMax {
			t.Fatalf("interrupt tag %d out of range [%d,%d]", tag, IntrTagMin, IntrTagMax)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{MsgID: MsgDevDepMsgOut, Tag: 5, TransferSize: 300, Attributes: AttrEOM, TermChar: 0}
	buf := Encode(h)

	if buf[2] != ^buf[1] {
		t.Fatalf("buf[2] should be ~buf[1], got %02x vs %02x", buf[2], buf[1])
	}
	if buf[3] != 0 || buf[10] != 0 || buf[11] != 0 {
		t.Fatalf("reserved bytes must be zero: %v", buf)
	}

	got := Decode(buf[:])
	if got.MsgID != h.MsgID || got.Tag != h.Tag || got.TransferSize != h.TransferSize {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if !got.EOM() {
		t.Fatal("expected EOM set after round trip")
	}
}

func TestPadRoundsToMultipleOfFour(t *testing.T) {
	cases := map[int]int{
		12: 0,
		13: 3,
		14: 2,
		15: 1,
		16: 0,
		0:  0,
	}
	for total, want := range cases {
		if got := Pad(total); got != want {
			t.Errorf("Pad(%d) = %d, want %d", total, got, want)
		}
		if (total+Pad(total))%4 != 0 {
			t.Errorf("Pad(%d) did not round to multiple of 4", total)
		}
	}
}
