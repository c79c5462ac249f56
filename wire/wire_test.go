package wire

import (
	"bytes"
	"testing"
)

func TestMessage_RoundTripsEveryArgType(t *testing.T) {
	msg := Message{
		Address: "/synth.1/freq",
		Args: []Arg{
			Int32(42), Int64(-7), Float32(1.5), Float64(3.25),
			String("hello"), Blob([]byte{1, 2, 3}), Time(NewTimetag(100, 200)),
			Bool(true), Bool(false), Nil(),
		},
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if len(data)%4 != 0 {
		t.Errorf("encoded message length %d is not 4-byte aligned", len(data))
	}

	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Address != msg.Address {
		t.Errorf("Address = %q, want %q", got.Address, msg.Address)
	}
	if len(got.Args) != len(msg.Args) {
		t.Fatalf("got %d args, want %d", len(got.Args), len(msg.Args))
	}
	if got.Args[0].I32 != 42 || got.Args[1].I64 != -7 || got.Args[2].F32 != 1.5 ||
		got.Args[3].F64 != 3.25 || got.Args[4].Str != "hello" ||
		!bytes.Equal(got.Args[5].Blob, []byte{1, 2, 3}) || got.Args[6].Time != NewTimetag(100, 200) ||
		got.Args[7].Tag != TagTrue || got.Args[8].Tag != TagFalse || got.Args[9].Tag != TagNil {
		t.Errorf("decoded args mismatch: %+v", got.Args)
	}
}

func TestMessage_EmptyAddressAndNoArgs(t *testing.T) {
	data, err := EncodeMessage(Message{Address: "/sync"})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Address != "/sync" || len(got.Args) != 0 {
		t.Errorf("got %+v, want address /sync with no args", got)
	}
}

func TestDecodeMessage_TruncatedPayload(t *testing.T) {
	data, _ := EncodeMessage(Message{Address: "/x", Args: []Arg{Int64(1)}})
	if _, err := DecodeMessage(data[:len(data)-2]); err == nil {
		t.Error("decoding a truncated int64 payload should error")
	}
}

func TestDecodeMessage_UnknownTypetag(t *testing.T) {
	data, _ := EncodeMessage(Message{Address: "/x", Args: []Arg{Int32(1)}})
	// Corrupt the typetag byte (address "/x\0\0" is 4 bytes, then ",i\0\0").
	corrupt := append([]byte(nil), data...)
	corrupt[5] = 'z'
	if _, err := DecodeMessage(corrupt); err == nil {
		t.Error("decoding an unrecognized typetag should error")
	}
}

func TestBundle_RoundTrip(t *testing.T) {
	bundle := Bundle{
		Time: NewTimetag(500, 1),
		Messages: []Message{
			{Address: "/a", Args: []Arg{Int32(1)}},
			{Address: "/b", Args: []Arg{String("two")}},
		},
	}
	data, err := EncodeBundle(bundle)
	if err != nil {
		t.Fatalf("EncodeBundle: %v", err)
	}
	got, err := DecodeBundle(data)
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}
	if got.Time != bundle.Time || len(got.Messages) != 2 {
		t.Fatalf("decoded bundle = %+v", got)
	}
	if got.Messages[0].Address != "/a" || got.Messages[1].Address != "/b" {
		t.Errorf("decoded bundle messages out of order or wrong: %+v", got.Messages)
	}
}

func TestDecodeBundle_RejectsNonBundleMagic(t *testing.T) {
	data, _ := EncodeMessage(Message{Address: "/not-a-bundle"})
	if _, err := DecodeBundle(data); err == nil {
		t.Error("DecodeBundle should reject data that isn't bundle-prefixed")
	}
}

func TestTimetag_SecondsAndFrac(t *testing.T) {
	tt := NewTimetag(123, 456)
	if tt.Seconds() != 123 || tt.Frac() != 456 {
		t.Errorf("Timetag(123,456) = seconds=%d frac=%d", tt.Seconds(), tt.Frac())
	}
}
