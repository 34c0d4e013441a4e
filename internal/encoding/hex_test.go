package encoding

import (
	"encoding"
	"errors"
	"testing"
)

// Assert interface implemented.
var (
	_ encoding.TextMarshaler   = (*HexEncoding)(nil)
	_ encoding.TextUnmarshaler = (*HexEncoding)(nil)
)

type unmarshalTestCase struct {
	name, input string

	expectCodes int
	expectErr   error
}

func TestHexEncoder_UnmarshalText(t *testing.T) {
	t.Parallel()

	tcs := []unmarshalTestCase{
		{
			name:      "empty",
			input:     "",
			expectErr: errEmpty,
		},
		{
			name:      "eof record",
			input:     ":00000001ff",
			expectErr: errEmpty,
		},
		{
			name:      "eof record with newlines",
			input:     "\n\n:00000001ff\n\n",
			expectErr: errEmpty,
		},
		{
			name:      "invalid bytes",
			input:     ":invalid",
			expectErr: errInvalidHex,
		},
		{
			name:      "nonsense",
			input:     "u wot mate",
			expectErr: errInvalidHex,
		},
		{
			name:        "data record",
			input:       ":0424620064656164e8\n",
			expectCodes: 1,
		},
		{
			name:        "data records",
			input:       ":0424620064656164e8\n:0424620064656164e8\n",
			expectCodes: 2,
		},
		{
			name:      "data length not word-aligned",
			input:     ":03020301facedd",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":0",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":00",
			expectErr: errInvalidHex,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, err := unmarshal(tc)

			t.Logf("have: %q, got: %+v, err: %v", tc.input, code, err)

			switch {
			case tc.expectErr != nil && err != nil:
				if !errors.Is(err, tc.expectErr) {
					t.Errorf("Unexpected error: got: %s, want: %s",
						err.Error(), tc.expectErr.Error())
				}
			case tc.expectErr != nil && err == nil:
				t.Errorf("Expected error: %s", tc.expectErr.Error())
			case tc.expectErr == nil && err != nil:
				t.Errorf("Unexpected error: got: %v", err)
			case len(code) != tc.expectCodes:
				t.Errorf("Unexpected code: want: %d, got: %d", tc.expectCodes, len(code))
			}
		})
	}
}

type marshalTestCase struct {
	name  string
	input []Record

	expectOutput string
	expectErr    error
}

func TestHexEncoder_MarshalText(t *testing.T) {
	t.Parallel()

	tcs := []marshalTestCase{
		{
			name:         "nil",
			input:        nil,
			expectOutput: ":00000001ff\n",
		},
		{
			name: "single word",
			input: []Record{
				{
					Orig: 0x2462,
					Code: []uint32{0x64656164},
				},
			},
			expectOutput: ":0424620064656164e8\n:00000001ff\n",
		},
	}

	for _, tc := range tcs {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			output, err := marshal(tc)

			t.Logf("have: %+v, got: %q, err: %v", tc.input, output, err)

			switch {
			case tc.expectErr != nil && err != nil:
				if !errors.Is(err, tc.expectErr) {
					t.Errorf("Unexpected error: got: %s, want: %s",
						err.Error(), tc.expectErr.Error())
				}
			case tc.expectErr != nil && err == nil:
				t.Errorf("Expected error: %s", tc.expectErr.Error())
			case tc.expectErr == nil && err != nil:
				t.Errorf("Unexpected error: got: %v", err)
			default:
				if tc.expectOutput != output {
					t.Errorf("got: %q, want: %q", output, tc.expectOutput)
				}
			}
		})
	}
}

func TestHexEncoder_RoundTrip(t *testing.T) {
	t.Parallel()

	enc := HexEncoding{code: []Record{
		{Orig: 0x1000, Code: []uint32{0x00000013, 0xdeadbeef, 0x12345678}},
	}}

	text, err := enc.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	dec := HexEncoding{}
	if err := dec.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := dec.Code()
	if len(got) != 1 || got[0].Orig != 0x1000 || len(got[0].Code) != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if got[0].Code[1] != 0xdeadbeef {
		t.Fatalf("word[1] = %#x, want 0xdeadbeef", got[0].Code[1])
	}
}

func marshal(tc marshalTestCase) (string, error) {
	encoder := HexEncoding{code: tc.input}
	out, err := encoder.MarshalText()

	return string(out), err
}

func unmarshal(tc unmarshalTestCase) ([]Record, error) {
	decoder := HexEncoding{}
	err := decoder.UnmarshalText([]byte(tc.input))

	return decoder.Code(), err
}
