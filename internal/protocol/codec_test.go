package protocol_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/protocol"
)

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fields map[string]string
	}{
		{"empty", map[string]string{}},
		{"request", map[string]string{
			"type": "metatile_render_request", "id": "t1", "map": "osm",
			"x": "0", "y": "0", "z": "2",
		}},
		{"value with equals", map[string]string{"errmsg": "a=b=c", "result": "fail"}},
		{"empty value", map[string]string{"id": ""}},
		{"punctuated keys", map[string]string{"tile-size": "256", "x.y": "1", "clé": "v"}},
		{"trailing carriage return", map[string]string{"errmsg": "line\r"}},
		{"spaces", map[string]string{" key ": " value "}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := protocol.Decode(protocol.Encode(tc.fields))
			if diff := cmp.Diff(tc.fields, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Decode(Encode()) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeIgnoresLineOrder(t *testing.T) {
	lines := []string{"type=metatile_render_request", "id=t1", "map=osm", "x=8", "y=16", "z=5"}
	want := protocol.Decode([]byte(strings.Join(lines, "\n")))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), lines...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := protocol.Decode([]byte(strings.Join(shuffled, "\n")))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("order %v changed decoding (-want +got):\n%s", shuffled, diff)
		}
	}
}

func TestDecodeSkipsMalformedLines(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"garbage", "hello world\n\x00\x01\n=novalue", map[string]string{}},
		{"mixed", "id=7\nnot a pair\nmap=osm\n=orphan", map[string]string{"id": "7", "map": "osm"}},
		{"last wins", "id=1\nid=2", map[string]string{"id": "2"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := protocol.Decode([]byte(tc.input))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	fields := map[string]string{"z": "1", "a": "2", "m": "3"}
	if got, want := string(protocol.Encode(fields)), "a=2\nm=3\nz=1"; got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestParseRenderRequest(t *testing.T) {
	req := protocol.RenderRequest{ID: "t1", Map: "osm", X: 8, Y: 16, Z: 5}
	got, err := protocol.ParseRenderRequest(protocol.Decode(protocol.Encode(req.Fields())))
	if err != nil {
		t.Fatalf("ParseRenderRequest failed: %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRenderRequestErrors(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{"id": "t1", "map": "osm", "x": "0", "y": "0", "z": "2"}
	}

	for _, tc := range []struct {
		name   string
		mutate func(map[string]string)
		field  string
	}{
		{"missing map", func(m map[string]string) { delete(m, "map") }, "map"},
		{"missing x", func(m map[string]string) { delete(m, "x") }, "x"},
		{"bad y", func(m map[string]string) { m["y"] = "abc" }, "y"},
		{"negative z", func(m map[string]string) { m["z"] = "-1" }, "z"},
		{"zoom too deep", func(m map[string]string) { m["z"] = "31" }, "z"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fields := base()
			tc.mutate(fields)

			req, err := protocol.ParseRenderRequest(fields)
			if !errors.IsCode(err, errors.CodeDecode) {
				t.Fatalf("expected decode error, got %v", err)
			}
			if got := errors.GetFields(err)["field"]; got != tc.field {
				t.Errorf("field = %v, want %v", got, tc.field)
			}
			if req.ID != "t1" {
				t.Errorf("expected id to be recovered, got %q", req.ID)
			}
		})
	}
}

func TestRenderResponseFields(t *testing.T) {
	for _, tc := range []struct {
		name string
		resp protocol.RenderResponse
		want map[string]string
	}{
		{
			name: "ok",
			resp: protocol.RenderResponse{Type: protocol.TypeMetatileRenderRequest, ID: "t1", OK: true, RenderTime: 3},
			want: map[string]string{"type": "metatile_render_request", "id": "t1", "result": "ok", "render_time": "3"},
		},
		{
			name: "fail with id",
			resp: protocol.RenderResponse{Type: protocol.TypeMetatileRenderRequest, ID: "t2", ErrMsg: "boom"},
			want: map[string]string{"id": "t2", "result": "fail", "errmsg": "boom"},
		},
		{
			name: "fail without id",
			resp: protocol.RenderResponse{ErrMsg: "boom"},
			want: map[string]string{"result": "fail", "errmsg": "boom"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.resp.Fields()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
			}

			parsed, err := protocol.ParseRenderResponse(got)
			if err != nil {
				t.Fatalf("ParseRenderResponse failed: %v", err)
			}
			if parsed.OK != tc.resp.OK || parsed.ID != tc.resp.ID {
				t.Errorf("parsed = %+v, want %+v", parsed, tc.resp)
			}
		})
	}
}
