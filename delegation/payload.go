// Package delegation composes the full delegation flow: anchor a descriptive
// payload externally, build and sign an association record referencing it,
// and return a pending, partially-signed record for the counter-party to
// complete.
package delegation

import (
	"encoding/json"
	"fmt"
)

// KindOperatorDelegation is the payload kind for operator delegations.
const KindOperatorDelegation = "agent-operator-delegation"

// Payload is the JSON document describing a delegation. It is anchored to
// content-addressed storage and referenced by pointer only; the association
// record never carries it inline.
type Payload struct {
	Kind             string `json:"kind"`
	FeedbackAuth     string `json:"feedbackAuth,omitempty"`
	AgentID          string `json:"agentId"`
	ClientAddress    string `json:"clientAddress"`
	ChainID          string `json:"chainId"`
	IndexLimit       string `json:"indexLimit"`
	Expiry           string `json:"expiry"`
	IdentityRegistry string `json:"identityRegistry"`
	SignerAddress    string `json:"signerAddress"`
	OperatorAddress  string `json:"operatorAddress"`
	CreatedAt        string `json:"createdAt"`
}

// Ref is the pointer embedded as the association description in place of the
// payload. PayloadURI and PayloadCID stay empty when anchoring failed.
type Ref struct {
	Type       string `json:"type"`
	PayloadURI string `json:"payloadUri,omitempty"`
	PayloadCID string `json:"payloadCid,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

func (r Ref) encode() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode delegation ref: %w", err)
	}
	return string(raw), nil
}
