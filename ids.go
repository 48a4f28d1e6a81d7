package invoiceflow

import (
	"strings"

	"github.com/google/uuid"
	"go.jetify.com/typeid"
)

// Prefixes used for generated identifiers. Both produce URL-safe strings.
const (
	InstancePrefix   = "inv"
	CheckpointPrefix = "ckpt"
)

// NewInstanceID returns a new identifier for a workflow instance.
func NewInstanceID() string {
	return newTypeID(InstancePrefix)
}

// NewCheckpointID returns a new identifier for a suspend checkpoint.
func NewCheckpointID() string {
	return newTypeID(CheckpointPrefix)
}

// IsInstanceID reports whether id is a well-formed instance identifier.
func IsInstanceID(id string) bool {
	return hasTypeIDPrefix(id, InstancePrefix)
}

// IsCheckpointID reports whether id is a well-formed checkpoint identifier.
func IsCheckpointID(id string) bool {
	return hasTypeIDPrefix(id, CheckpointPrefix)
}

func hasTypeIDPrefix(id, prefix string) bool {
	tid, err := typeid.FromString(id)
	return err == nil && tid.Prefix() == prefix
}

// NewReviewerID returns a generated reviewer id for decisions submitted
// without one, e.g. "reviewer_3f9a1c2b".
func NewReviewerID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "reviewer_" + hex[:8]
}

func newTypeID(prefix string) string {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return id.String()
}
