package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jbweber/quarry/qerr"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    []byte
		wantErr bool
	}{
		{
			name: "full request",
			req: Request{
				Method:  "admin.vm.property.Get",
				Dest:    "work",
				Arg:     "memory",
				Payload: nil,
			},
			want: []byte("admin.vm.property.Get\x00work\x00memory\x00"),
		},
		{
			name: "empty dest defaults to global",
			req: Request{
				Method: "admin.property.List",
			},
			want: []byte("admin.property.List\x00dom0\x00\x00"),
		},
		{
			name: "payload appended verbatim",
			req: Request{
				Method:  "admin.vm.property.Set",
				Dest:    "work",
				Arg:     "memory",
				Payload: []byte("1024"),
			},
			want: []byte("admin.vm.property.Set\x00work\x00memory\x001024"),
		},
		{
			name: "payload may contain NUL and newline",
			req: Request{
				Method:  "admin.pool.Add",
				Arg:     "file",
				Payload: []byte("name=pp\ndir_path=/var\x00x"),
			},
			want: []byte("admin.pool.Add\x00dom0\x00file\x00name=pp\ndir_path=/var\x00x"),
		},
		{
			name:    "empty method rejected",
			req:     Request{Dest: "work"},
			wantErr: true,
		},
		{
			name: "NUL in dest rejected",
			req: Request{
				Method: "admin.vm.Start",
				Dest:   "wo\x00rk",
			},
			wantErr: true,
		},
		{
			name: "newline in arg rejected",
			req: Request{
				Method: "admin.vm.property.Get",
				Dest:   "work",
				Arg:    "mem\nory",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("Encode() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Errorf("Encode() error = %v, want ErrProtocol", err)
				}
				return
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseResponseSuccess(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []byte
	}{
		{
			name: "payload returned verbatim",
			raw:  []byte("0512"),
			want: []byte("512"),
		},
		{
			name: "empty payload",
			raw:  []byte("0"),
			want: []byte{},
		},
		{
			name: "payload with NULs untouched",
			raw:  []byte("0a\x00b"),
			want: []byte("a\x00b"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.raw)
			if err != nil {
				t.Fatalf("ParseResponse() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ParseResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseResponseError(t *testing.T) {
	raw := []byte("2QubesVMNotFoundError\x00no such domain: work\x00Traceback...")
	_, err := ParseResponse(raw)
	if err == nil {
		t.Fatal("ParseResponse() expected error")
	}

	var remote *qerr.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("ParseResponse() error = %T, want *qerr.RemoteError", err)
	}
	if remote.Class != "QubesVMNotFoundError" {
		t.Errorf("Class = %q, want QubesVMNotFoundError", remote.Class)
	}
	if remote.Message != "no such domain: work" {
		t.Errorf("Message = %q", remote.Message)
	}
	if remote.Traceback != "Traceback..." {
		t.Errorf("Traceback = %q", remote.Traceback)
	}
	if !errors.Is(err, qerr.ErrNotFound) {
		t.Errorf("error does not match qerr.ErrNotFound: %v", err)
	}
}

func TestParseResponseErrorEmptyMessage(t *testing.T) {
	// All three fields present but empty is still a well-formed error.
	_, err := ParseResponse([]byte("2\x00\x00"))
	var remote *qerr.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("ParseResponse() error = %T, want *qerr.RemoteError", err)
	}
	if remote.Message != "" {
		t.Errorf("Message = %q, want empty", remote.Message)
	}
}

func TestParseResponseProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty response", raw: nil},
		{name: "unknown tag", raw: []byte("1whatever")},
		{name: "error with no fields", raw: []byte("2")},
		{name: "error with two fields", raw: []byte("2Class\x00message")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw)
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("ParseResponse() error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	// Encoding a request and parsing a success response never touch the
	// payload bytes.
	payload := []byte{0, 1, 2, '\n', 0xff}
	raw, err := Encode(Request{Method: "admin.vm.volume.Info", Dest: "work", Arg: "private", Payload: payload})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	header := []byte("admin.vm.volume.Info\x00work\x00private\x00")
	if !bytes.Equal(raw, append(header, payload...)) {
		t.Errorf("Encode() = %q", raw)
	}

	got, err := ParseResponse(append([]byte{TagOK}, payload...))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ParseResponse() = %q, want %q", got, payload)
	}
}
