/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import (
	"encoding/json"
	"fmt"
)

// Kind is the logical operation of a request.
type Kind string

// Operation kinds.
const (
	KindGet    Kind = "get"
	KindList   Kind = "list"
	KindFilter Kind = "filter"
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// IsRead reports whether results of the kind are cacheable.
func (k Kind) IsRead() bool {
	switch k {
	case KindGet, KindList, KindFilter:
		return true
	}
	return false
}

// IsMutation reports whether a successful call of the kind invalidates cached results.
func (k Kind) IsMutation() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Request is a logical backend call passed to Transport.
type Request struct {
	Kind     Kind
	Resource string
	Params   map[string]any
}

// Signature identifies equivalent requests. Requests with equal signatures share cache entries and in-flight calls.
type Signature struct {
	Kind     Kind
	Resource string
	// Tenant is the tenant scope taken from the request parameters, empty if absent.
	Tenant string
	// Params is the canonical JSON form of the parameters: object keys are sorted at every nesting level.
	Params string
}

// NewSignature computes the signature of req. tenantParam names the parameter holding the tenant scope.
func NewSignature(req Request, tenantParam string) (Signature, error) {
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	// encoding/json writes map keys in sorted order, which makes the encoding independent of insertion order.
	data, err := json.Marshal(params)
	if err != nil {
		return Signature{}, fmt.Errorf("serialize parameters of %s %s: %w", req.Kind, req.Resource, err)
	}
	return Signature{
		Kind:     req.Kind,
		Resource: req.Resource,
		Tenant:   tenantOf(params, tenantParam),
		Params:   string(data),
	}, nil
}

// String returns "<kind>:<resource>:<params>".
func (s Signature) String() string {
	return string(s.Kind) + ":" + s.Resource + ":" + s.Params
}

func tenantOf(params map[string]any, tenantParam string) string {
	if tenantParam == "" {
		return ""
	}
	switch v := params[tenantParam].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
