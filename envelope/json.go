package envelope

import (
	"encoding/hex"
	"fmt"

	"github.com/ruteri/kms-identity/principal"
)

// HexBytes is a byte slice that marshals as a hex string.
type HexBytes []byte

// MarshalText encodes b as lowercase hex.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

// UnmarshalText decodes hex, with or without a 0x prefix.
func (b *HexBytes) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = decoded
	return nil
}

// ContentJSON is the JSON form of request content accepted by the signer
// tools. Principals use their textual form and byte fields are hex. The
// sender is always the signing identity and is not part of the document.
type ContentJSON struct {
	RequestType   RequestType          `json:"request_type"`
	CanisterID    *principal.Principal `json:"canister_id,omitempty"`
	MethodName    string               `json:"method_name,omitempty"`
	Arg           HexBytes             `json:"arg,omitempty"`
	Nonce         HexBytes             `json:"nonce,omitempty"`
	IngressExpiry uint64               `json:"ingress_expiry,omitempty"`
	Paths         [][]HexBytes         `json:"paths,omitempty"`
}

// Content converts the document into request content sent as sender.
func (j *ContentJSON) Content(sender principal.Principal) (*Content, error) {
	c := &Content{
		RequestType:   j.RequestType,
		Sender:        sender,
		MethodName:    j.MethodName,
		Arg:           []byte(j.Arg),
		IngressExpiry: j.IngressExpiry,
	}
	if j.Nonce != nil {
		c.Nonce = []byte(j.Nonce)
	}
	if j.CanisterID != nil {
		c.CanisterID = *j.CanisterID
	}
	if c.Arg == nil && c.RequestType != RequestTypeReadState {
		c.Arg = []byte{}
	}
	for _, path := range j.Paths {
		labels := make([][]byte, 0, len(path))
		for _, label := range path {
			labels = append(labels, []byte(label))
		}
		c.Paths = append(c.Paths, labels)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
