package settlement

import (
	"strings"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

// Kind is what a confirmation pays for.
type Kind string

const (
	KindOrder Kind = "order"
	KindTopUp Kind = "topup"
)

// OrderTag and TopUpTag build the opaque metadata attached to provider
// payments so a confirmation can be routed back to what it pays for.
func OrderTag(orderID string) string { return string(KindOrder) + ":" + orderID }

func TopUpTag(topUpID string) string { return string(KindTopUp) + ":" + topUpID }

// ParseTag splits a tag into its kind and target id.
func ParseTag(tag string) (Kind, string, error) {
	prefix, id, ok := strings.Cut(tag, ":")
	if !ok || id == "" {
		return "", "", domain.Invalid("tag", "malformed payment tag "+tag)
	}

	switch Kind(prefix) {
	case KindOrder, KindTopUp:
		return Kind(prefix), id, nil
	}
	return "", "", domain.Invalid("tag", "unknown payment tag "+tag)
}
