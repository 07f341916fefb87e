package frame

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecodeInvokeRoundTrip(t *testing.T) {
	s, err := Encode(TypeInvoke, "hi", "27", "/hello")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if s != `1$27~/hello|"hi"` {
		t.Fatalf("unexpected wire form: %q", s)
	}

	f, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Type != TypeInvoke || f.ID != "27" || f.Path != "/hello" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	var data string
	if err := json.Unmarshal(f.Data, &data); err != nil || data != "hi" {
		t.Fatalf("unexpected body: %s (err %v)", f.Data, err)
	}
}

func TestEncodeDecodeResult(t *testing.T) {
	s, err := Encode(TypeResult, "hi", "27", "")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if s != `2$27|"hi"` {
		t.Fatalf("unexpected wire form: %q", s)
	}
	f, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Type != TypeResult || f.ID != "27" || f.Path != "" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestEncodeDecodeNoBody(t *testing.T) {
	s, err := Encode(TypeResult, nil, "1", "")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if s != "2$1|" {
		t.Fatalf("unexpected wire form: %q", s)
	}
	f, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.HasData {
		t.Fatalf("expected no data, got %s", f.Data)
	}
}

func TestDecodeWelcome(t *testing.T) {
	s, err := Encode(TypeWelcome, ProtocolVersion, "", "")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var version int
	if err := json.Unmarshal(f.Data, &version); err != nil || version != ProtocolVersion {
		t.Fatalf("unexpected welcome body: %s", f.Data)
	}
}

func TestDecodePublishWithPercentEncodedPath(t *testing.T) {
	s, err := Encode(TypePublish, "world", "", "/a b/c")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Path != "/a b/c" {
		t.Fatalf("expected decoded path, got %q", f.Path)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []string{
		"",
		"1",
		"x$1~/a|",
		"9$1~/a|",
		"1$" + string(make([]byte, 40)) + "~/a|",
		"1$~/a|",
		"1$1~|",
		"1$1",
		"1$1~/a|not-json",
		"0$1|3",
		"0~/a|3",
		"0|4",
		"1|\"hi\"",
		"2|\"hi\"",
		"2$1~/a|\"hi\"",
		"3$1~/a|\"hi\"",
		"4$1~/a|\"hi\"",
		"4~|\"hi\"",
	}
	for _, c := range cases {
		if _, err := Decode(c); !errors.Is(err, ErrParseFrame) {
			t.Errorf("Decode(%q) = %v, want ErrParseFrame", c, err)
		}
	}
}

func TestDecodeAcceptsPathAtDecodedLengthLimit(t *testing.T) {
	// A path of exactly maxPathLen spaces percent-encodes to 3x its decoded
	// length ("%20" per char); a pre-decode length check would wrongly
	// reject it even though the decoded length is within bounds.
	spaces := make([]byte, maxPathLen)
	for i := range spaces {
		spaces[i] = ' '
	}
	path := string(spaces)

	s, err := Encode(TypePublish, "v", "", path)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed for max-length decoded path: %v", err)
	}
	if f.Path != path {
		t.Fatalf("expected decoded path to round-trip, got length %d want %d", len(f.Path), len(path))
	}
}

func TestDecodeRejectsOversizedID(t *testing.T) {
	longID := ""
	for i := 0; i < 33; i++ {
		longID += "a"
	}
	_, err := Decode("1$" + longID + "~/a|")
	if !errors.Is(err, ErrParseFrame) {
		t.Fatalf("expected ErrParseFrame for oversized id, got %v", err)
	}
}
