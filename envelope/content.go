package envelope

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ruteri/kms-identity/principal"
)

// RequestType distinguishes the request content kinds.
type RequestType string

const (
	RequestTypeCall      RequestType = "call"
	RequestTypeQuery     RequestType = "query"
	RequestTypeReadState RequestType = "read_state"
)

// domainSeparator prefixes the request id in the bytes that get signed.
var domainSeparator = []byte("\x0Aic-request")

// RequestID is the 32-byte digest of a request's content.
type RequestID [32]byte

// Signable returns the bytes a signer signs for this request id.
func (id RequestID) Signable() []byte {
	out := make([]byte, 0, len(domainSeparator)+len(id))
	out = append(out, domainSeparator...)
	return append(out, id[:]...)
}

// String returns the lowercase hex form of the id.
func (id RequestID) String() string {
	return hex.EncodeToString(id[:])
}

// Content is the content of a call, query or read_state request. Fields
// that do not apply to the request type are ignored.
type Content struct {
	RequestType   RequestType
	Nonce         []byte
	IngressExpiry uint64
	Sender        principal.Principal

	// call and query
	CanisterID principal.Principal
	MethodName string
	Arg        []byte

	// read_state
	Paths [][][]byte
}

// NewCall returns the content of an update call.
func NewCall(sender, canisterID principal.Principal, method string, arg []byte, ingressExpiry uint64) *Content {
	return &Content{
		RequestType:   RequestTypeCall,
		Sender:        sender,
		CanisterID:    canisterID,
		MethodName:    method,
		Arg:           arg,
		IngressExpiry: ingressExpiry,
	}
}

// NewQuery returns the content of a query call.
func NewQuery(sender, canisterID principal.Principal, method string, arg []byte, ingressExpiry uint64) *Content {
	c := NewCall(sender, canisterID, method, arg, ingressExpiry)
	c.RequestType = RequestTypeQuery
	return c
}

// NewReadState returns the content of a read_state request.
func NewReadState(sender principal.Principal, paths [][][]byte, ingressExpiry uint64) *Content {
	return &Content{
		RequestType:   RequestTypeReadState,
		Sender:        sender,
		Paths:         paths,
		IngressExpiry: ingressExpiry,
	}
}

// Validate checks that the fields required by the request type are present.
func (c *Content) Validate() error {
	if c == nil {
		return errors.New("nil request content")
	}
	if c.Sender == nil {
		return errors.New("sender is required")
	}
	switch c.RequestType {
	case RequestTypeCall, RequestTypeQuery:
		if c.CanisterID == nil {
			return errors.New("canister id is required")
		}
		if c.MethodName == "" {
			return errors.New("method name is required")
		}
	case RequestTypeReadState:
	default:
		return fmt.Errorf("unknown request type %q", c.RequestType)
	}
	return nil
}

// Fields returns the content as a map of protocol field names to values.
func (c *Content) Fields() Map {
	m := Map{
		"request_type":   Text(c.RequestType),
		"sender":         Blob(c.Sender),
		"ingress_expiry": Nat(c.IngressExpiry),
	}

	switch c.RequestType {
	case RequestTypeCall, RequestTypeQuery:
		m["canister_id"] = Blob(c.CanisterID)
		m["method_name"] = Text(c.MethodName)
		m["arg"] = Blob(c.Arg)
		if c.Nonce != nil {
			m["nonce"] = Blob(c.Nonce)
		}
	case RequestTypeReadState:
		paths := make(Array, 0, len(c.Paths))
		for _, path := range c.Paths {
			labels := make(Array, 0, len(path))
			for _, label := range path {
				labels = append(labels, Blob(label))
			}
			paths = append(paths, labels)
		}
		m["paths"] = paths
	}
	return m
}

// RequestID computes the request id of the content.
func (c *Content) RequestID() RequestID {
	return RequestID(HashOfMap(c.Fields()))
}
