package ops

import (
	"bytes"
	"testing"

	"chronoproof/internal/serialize"
)

func TestApply(t *testing.T) {
	msg := []byte("hello")

	if got := Append([]byte(" world")).Apply(msg); string(got) != "hello world" {
		t.Fatalf("Append: got %q", got)
	}
	if got := Prepend([]byte(">> ")).Apply(msg); string(got) != ">> hello" {
		t.Fatalf("Prepend: got %q", got)
	}
	if got := Reverse().Apply(msg); string(got) != "olleh" {
		t.Fatalf("Reverse: got %q", got)
	}
	if got := Hexlify().Apply(msg); string(got) != "68656c6c6f" {
		t.Fatalf("Hexlify: got %q", got)
	}
	if got := SHA256().Apply(nil); len(got) != 32 {
		t.Fatalf("SHA256 digest length: got %d", len(got))
	}
	if got := SHA1().Apply(nil); len(got) != 20 {
		t.Fatalf("SHA1 digest length: got %d", len(got))
	}
	if got := RIPEMD160().Apply(nil); len(got) != 20 {
		t.Fatalf("RIPEMD160 digest length: got %d", len(got))
	}
}

func TestEmptySHA256KnownAnswer(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	got := SHA256().Apply(nil)
	if hexEncode(got) != want {
		t.Fatalf("sha256(\"\") = %s, want %s", hexEncode(got), want)
	}
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

func TestRoundTrip(t *testing.T) {
	cases := []Op{
		SHA1(), RIPEMD160(), SHA256(), Reverse(), Hexlify(),
		Append([]byte("suffix")), Prepend([]byte("prefix")), Append(nil),
	}
	for _, op := range cases {
		w := serialize.NewWriter()
		w.WriteByte(byte(op.Tag()))
		op.SerializePayload(w)

		r := serialize.NewReader(w.Bytes())
		got, err := Deserialize(r)
		if err != nil {
			t.Fatalf("Deserialize(%v): %v", op, err)
		}
		if !got.Equal(op) {
			t.Fatalf("round trip mismatch: want %v got %v", op, got)
		}
		if err := r.AssertEOF(); err != nil {
			t.Fatalf("AssertEOF: %v", err)
		}
	}
}

func TestDeserializeUnknownTag(t *testing.T) {
	r := serialize.NewReader([]byte{0x99})
	if _, err := Deserialize(r); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestOrdering(t *testing.T) {
	a := SHA1()
	b := SHA256()
	if !Less(a, b) {
		t.Fatal("expected sha1 (0x02) < sha256 (0x08)")
	}
	if Less(b, a) {
		t.Fatal("ordering should not be symmetric here")
	}

	p1 := Append([]byte{0x01})
	p2 := Append([]byte{0x02})
	if !Less(p1, p2) {
		t.Fatal("expected lexicographically smaller payload to sort first")
	}
}

func TestIsCrypto(t *testing.T) {
	if !IsCrypto(SHA256()) {
		t.Fatal("sha256 should be crypto")
	}
	if IsCrypto(Reverse()) {
		t.Fatal("reverse should not be crypto")
	}
}

func TestAppendDoesNotMutateOperand(t *testing.T) {
	suffix := []byte("abc")
	op := Append(suffix)
	suffix[0] = 'z'
	got := op.Apply([]byte("x"))
	if !bytes.Equal(got, []byte("xabc")) {
		t.Fatalf("Append retained a live reference to caller's slice: got %q", got)
	}
}
