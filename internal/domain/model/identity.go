// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// DescriptorSize is the dimension of a face descriptor.
const DescriptorSize = 128

// Descriptor is a fixed-length face embedding. Only Euclidean distance
// between two descriptors is meaningful.
type Descriptor [DescriptorSize]float32

// DescriptorFromSlice copies v into a Descriptor. The length must match.
func DescriptorFromSlice(v []float32) (Descriptor, error) {
	var d Descriptor
	if len(v) != DescriptorSize {
		return d, fmt.Errorf("descriptor has %d dimensions, want %d", len(v), DescriptorSize)
	}
	copy(d[:], v)
	return d, nil
}

// Identity is a registered attendee. Identities are immutable once created.
type Identity struct {
	ID           string     // assigned at creation, never reused
	ExternalID   string     // user supplied, unique across the registry
	DisplayName  string     // shown on overlays and copied into records
	Email        string     // optional profile fields
	Phone        string
	Organization string
	JobTitle     string
	Descriptor   Descriptor
	RegisteredAt time.Time
}

// Profile is the identity without its descriptor, as exposed to clients.
type Profile struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"externalId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Organization string    `json:"organization,omitempty"`
	JobTitle     string    `json:"jobTitle,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Profile returns the public view of the identity.
func (i *Identity) Profile() Profile {
	return Profile{
		ID:           i.ID,
		ExternalID:   i.ExternalID,
		DisplayName:  i.DisplayName,
		Email:        i.Email,
		Phone:        i.Phone,
		Organization: i.Organization,
		JobTitle:     i.JobTitle,
		RegisteredAt: i.RegisteredAt,
	}
}
