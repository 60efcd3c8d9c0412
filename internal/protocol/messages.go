package protocol

import (
	"strconv"

	"metatiled/internal/pkg/errors"
)

// Message types and field values used on the wire.
const (
	TypeMetatileRenderRequest = "metatile_render_request"

	ResultOK   = "ok"
	ResultFail = "fail"
)

// Field names.
const (
	FieldType       = "type"
	FieldID         = "id"
	FieldMap        = "map"
	FieldX          = "x"
	FieldY          = "y"
	FieldZ          = "z"
	FieldResult     = "result"
	FieldRenderTime = "render_time"
	FieldErrMsg     = "errmsg"
)

// RenderRequest asks for one metatile of a layer.
type RenderRequest struct {
	ID  string
	Map string
	X   int
	Y   int
	Z   int
}

// Fields returns the wire representation of the request.
func (r RenderRequest) Fields() map[string]string {
	return map[string]string{
		FieldType: TypeMetatileRenderRequest,
		FieldID:   r.ID,
		FieldMap:  r.Map,
		FieldX:    strconv.Itoa(r.X),
		FieldY:    strconv.Itoa(r.Y),
		FieldZ:    strconv.Itoa(r.Z),
	}
}

// ParseRenderRequest builds a RenderRequest from decoded fields. It does not
// look at the type field; dispatching on it is the caller's job.
func ParseRenderRequest(fields map[string]string) (RenderRequest, error) {
	req := RenderRequest{
		ID:  fields[FieldID],
		Map: fields[FieldMap],
	}
	if req.Map == "" {
		return req, errors.DecodeField(FieldMap, "missing")
	}

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{FieldX, &req.X},
		{FieldY, &req.Y},
		{FieldZ, &req.Z},
	} {
		raw, ok := fields[f.name]
		if !ok {
			return req, errors.DecodeField(f.name, "missing")
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return req, errors.DecodeField(f.name, "not a non-negative integer: "+strconv.Quote(raw))
		}
		*f.dst = v
	}
	if req.Z > 30 {
		return req, errors.DecodeField(FieldZ, "zoom out of range: "+strconv.Itoa(req.Z))
	}

	return req, nil
}

// RenderResponse reports the outcome of one request back to the dispatcher.
type RenderResponse struct {
	Type string
	ID   string
	OK   bool
	// RenderTime is whole seconds, reported on success only.
	RenderTime int
	// ErrMsg is reported on failure only.
	ErrMsg string
}

// Fields returns the wire representation of the response. Empty Type and ID
// are omitted.
func (r RenderResponse) Fields() map[string]string {
	fields := make(map[string]string, 4)
	if r.ID != "" {
		fields[FieldID] = r.ID
	}
	if r.OK {
		if r.Type != "" {
			fields[FieldType] = r.Type
		}
		fields[FieldResult] = ResultOK
		fields[FieldRenderTime] = strconv.Itoa(r.RenderTime)
		return fields
	}
	fields[FieldResult] = ResultFail
	fields[FieldErrMsg] = r.ErrMsg
	return fields
}

// ParseRenderResponse is the inverse of RenderResponse.Fields.
func ParseRenderResponse(fields map[string]string) (RenderResponse, error) {
	resp := RenderResponse{
		Type:   fields[FieldType],
		ID:     fields[FieldID],
		ErrMsg: fields[FieldErrMsg],
	}
	switch fields[FieldResult] {
	case ResultOK:
		resp.OK = true
		if raw, ok := fields[FieldRenderTime]; ok {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return resp, errors.DecodeField(FieldRenderTime, "not an integer: "+strconv.Quote(raw))
			}
			resp.RenderTime = v
		}
	case ResultFail:
	default:
		return resp, errors.DecodeField(FieldResult, "unexpected value: "+strconv.Quote(fields[FieldResult]))
	}
	return resp, nil
}
