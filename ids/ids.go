// Package ids provides the identifier types shared by the patch, server and
// client packages: document ids, client (session) ids, and a generator for
// globally-unique, client-assigned change ids.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// DocID identifies a document. It is a UUIDv7 so that ids sort roughly by
// creation time, the same choice the pack makes for its session
// identifiers.
type DocID uuid.UUID

// NewDocID creates a new DocID.
func NewDocID() DocID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("ids: failed to create DocID: %v", err))
	}
	return DocID(u)
}

// ParseDocID parses a DocID from its string form.
func ParseDocID(s string) (DocID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocID{}, err
	}
	return DocID(u), nil
}

func (d DocID) String() string { return uuid.UUID(d).String() }

func (d DocID) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DocID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*d = DocID(u)
	return nil
}

// ClientID identifies a connected client/session. Used to tag commits so a
// transport can skip echoing a committed change back to its originator.
type ClientID uuid.UUID

// NewClientID creates a new ClientID.
func NewClientID() ClientID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("ids: failed to create ClientID: %v", err))
	}
	return ClientID(u)
}

func (c ClientID) String() string { return uuid.UUID(c).String() }

func (c ClientID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClientID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*c = ClientID(u)
	return nil
}

// IsZero reports whether c is the zero ClientID (no originator tagged).
func (c ClientID) IsZero() bool { return c == ClientID{} }
