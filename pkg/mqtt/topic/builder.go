package topic

import (
	"fmt"
	"strings"
)

// Builder constructs MQTT topic strings under a fixed root namespace.
type Builder struct {
	// root is the base namespace for all topics (e.g., "broute/v1", "home/meter").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Root returns the namespace topics are built under.
func (b *Builder) Root() string {
	return b.root
}
