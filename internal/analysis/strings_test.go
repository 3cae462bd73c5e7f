package analysis

import (
	"reflect"
	"testing"

	"sigmatch/internal/sig"
)

func TestStringRuns(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []sig.StringRecord
	}{
		{
			name: "single string",
			data: []byte("hello world\x00"),
			want: []sig.StringRecord{{Addr: 0x1000, Value: "hello world"}},
		},
		{
			name: "two strings with padding",
			data: []byte("first\x00\x00\x00second one\x00"),
			want: []sig.StringRecord{
				{Addr: 0x1000, Value: "first"},
				{Addr: 0x1008, Value: "second one"},
			},
		},
		{
			name: "too short",
			data: []byte("hi\x00"),
			want: nil,
		},
		{
			name: "unterminated tail dropped",
			data: []byte("no terminator here"),
			want: nil,
		},
		{
			name: "broken by binary byte",
			data: []byte("almost a string\xff\x00"),
			want: nil,
		},
		{
			name: "whitespace kept",
			data: []byte("line one\nline two\x00"),
			want: []sig.StringRecord{{Addr: 0x1000, Value: "line one\nline two"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stringRuns(tt.data, 0x1000, MinStringLength)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("stringRuns = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEscapeUnprintable(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte("tab\there"), "tab\\u0009here"},
		{[]byte{0xff, 'a'}, "\\xFFa"},
	}
	for _, tt := range tests {
		if got := EscapeUnprintable(tt.in); got != tt.want {
			t.Errorf("EscapeUnprintable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDemangle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"_Z3foov", "foo()"},
		{"plain_c_symbol", "plain_c_symbol"},
	}
	for _, tt := range tests {
		if got := Demangle(tt.in); got != tt.want {
			t.Errorf("Demangle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
