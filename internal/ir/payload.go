package ir

import (
	"encoding/json"
	"fmt"
	"time"
)

// BindPayload is the decoded payload of a BIND event.
type BindPayload struct {
	TagUID string
	Target BindTarget
}

// UnbindPayload is the decoded payload of an UNBIND event.
type UnbindPayload struct {
	TagUID string
}

// PlacePayload is the decoded payload of CHECKIN and MOVE events.
// MOVE uses the toZoneId/toCtbPath field names on the wire.
type PlacePayload struct {
	Object   ObjectRef
	Location Location
}

// CheckoutPayload is the decoded payload of a CHECKOUT event.
type CheckoutPayload struct {
	Object           ObjectRef
	ExpectedReturnAt *time.Time
}

// ReturnRef says which transaction a RETURN closes: ReturnByTx or ReturnByObject.
type ReturnRef interface {
	returnRef()
}

// ReturnByTx names the transaction directly.
type ReturnByTx struct {
	TxID string
}

// ReturnByObject resolves the transaction through the open-transaction index.
type ReturnByObject struct {
	Object ObjectRef
}

func (ReturnByTx) returnRef()     {}
func (ReturnByObject) returnRef() {}

// ReturnPayload is the decoded payload of a RETURN event.
type ReturnPayload struct {
	Ref ReturnRef
}

// PayloadError reports a payload that matches none of its variants.
type PayloadError struct {
	Kind    EventKind
	Message string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Message)
}

// wirePayload is the union of every payload field on the wire.
type wirePayload struct {
	TagUID           string     `json:"tagUid"`
	ObjectType       string     `json:"objectType"`
	ObjectID         string     `json:"objectId"`
	ZoneID           string     `json:"zoneId"`
	CtbPath          string     `json:"ctbPath"`
	ToZoneID         string     `json:"toZoneId"`
	ToCtbPath        string     `json:"toCtbPath"`
	TxID             string     `json:"txId"`
	ExpectedReturnAt *time.Time `json:"expectedReturnAt"`
}

func decodeWire(kind EventKind, raw json.RawMessage) (wirePayload, error) {
	var w wirePayload
	if len(raw) == 0 {
		return w, &PayloadError{Kind: kind, Message: "payload is missing"}
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return w, &PayloadError{Kind: kind, Message: err.Error()}
	}
	return w, nil
}

func (w wirePayload) object() (ObjectRef, bool) {
	if w.ObjectType == "" || w.ObjectID == "" {
		return ObjectRef{}, false
	}
	return ObjectRef{Type: w.ObjectType, ID: w.ObjectID}, true
}

// DecodeBind decodes a BIND payload into its object or zone variant.
func DecodeBind(raw json.RawMessage) (BindPayload, error) {
	w, err := decodeWire(KindBind, raw)
	if err != nil {
		return BindPayload{}, err
	}
	if w.TagUID == "" {
		return BindPayload{}, &PayloadError{Kind: KindBind, Message: "tagUid is required"}
	}
	obj, hasObject := w.object()
	switch {
	case hasObject && w.ZoneID == "":
		return BindPayload{TagUID: w.TagUID, Target: ObjectTarget{Object: obj}}, nil
	case !hasObject && w.ObjectType == "" && w.ObjectID == "" && w.ZoneID != "":
		return BindPayload{TagUID: w.TagUID, Target: ZoneTarget{ZoneID: w.ZoneID}}, nil
	default:
		return BindPayload{}, &PayloadError{Kind: KindBind, Message: "exactly one of (objectType, objectId) or zoneId is required"}
	}
}

// DecodeUnbind decodes an UNBIND payload.
func DecodeUnbind(raw json.RawMessage) (UnbindPayload, error) {
	w, err := decodeWire(KindUnbind, raw)
	if err != nil {
		return UnbindPayload{}, err
	}
	if w.TagUID == "" {
		return UnbindPayload{}, &PayloadError{Kind: KindUnbind, Message: "tagUid is required"}
	}
	return UnbindPayload{TagUID: w.TagUID}, nil
}

// DecodePlace decodes a CHECKIN or MOVE payload.
func DecodePlace(kind EventKind, raw json.RawMessage) (PlacePayload, error) {
	w, err := decodeWire(kind, raw)
	if err != nil {
		return PlacePayload{}, err
	}
	obj, ok := w.object()
	if !ok {
		return PlacePayload{}, &PayloadError{Kind: kind, Message: "objectType and objectId are required"}
	}

	zone, path := w.ZoneID, w.CtbPath
	zoneField, pathField := "zoneId", "ctbPath"
	if kind == KindMove {
		zone, path = w.ToZoneID, w.ToCtbPath
		zoneField, pathField = "toZoneId", "toCtbPath"
	}

	switch {
	case zone != "" && path == "":
		return PlacePayload{Object: obj, Location: ZoneLocation{ZoneID: zone}}, nil
	case zone == "" && path != "":
		return PlacePayload{Object: obj, Location: ContainerLocation{Path: path}}, nil
	default:
		return PlacePayload{}, &PayloadError{
			Kind:    kind,
			Message: fmt.Sprintf("exactly one of %s or %s is required", zoneField, pathField),
		}
	}
}

// DecodeCheckout decodes a CHECKOUT payload.
func DecodeCheckout(raw json.RawMessage) (CheckoutPayload, error) {
	w, err := decodeWire(KindCheckout, raw)
	if err != nil {
		return CheckoutPayload{}, err
	}
	obj, ok := w.object()
	if !ok {
		return CheckoutPayload{}, &PayloadError{Kind: KindCheckout, Message: "objectType and objectId are required"}
	}
	return CheckoutPayload{Object: obj, ExpectedReturnAt: w.ExpectedReturnAt}, nil
}

// DecodeReturn decodes a RETURN payload. A txId takes precedence over an
// object reference when both are present.
func DecodeReturn(raw json.RawMessage) (ReturnPayload, error) {
	w, err := decodeWire(KindReturn, raw)
	if err != nil {
		return ReturnPayload{}, err
	}
	obj, hasObject := w.object()
	switch {
	case w.TxID != "" && w.ObjectType == "" && w.ObjectID == "":
		return ReturnPayload{Ref: ReturnByTx{TxID: w.TxID}}, nil
	case w.TxID == "" && hasObject:
		return ReturnPayload{Ref: ReturnByObject{Object: obj}}, nil
	case w.TxID != "":
		return ReturnPayload{}, &PayloadError{Kind: KindReturn, Message: "txId and (objectType, objectId) are mutually exclusive"}
	}
	return ReturnPayload{}, &PayloadError{Kind: KindReturn, Message: "txId or (objectType, objectId) is required"}
}
