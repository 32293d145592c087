package respond

import (
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

// Identity headers are set by the auth proxy in front of the market API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

type Caller struct {
	ID   string
	Role Role
}

func (c Caller) Admin() bool { return c.Role == RoleAdmin }

// CallerFrom reads the caller identity. A missing user id is forbidden; a
// missing or unknown role is treated as a buyer.
func CallerFrom(r *http.Request) (Caller, error) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return Caller{}, domain.ErrForbidden
	}

	role := Role(r.Header.Get(HeaderUserRole))
	switch role {
	case RoleVendor, RoleAdmin:
	default:
		role = RoleBuyer
	}

	return Caller{ID: id, Role: role}, nil
}

// Require returns the caller when their role is one of roles.
func Require(r *http.Request, roles ...Role) (Caller, error) {
	caller, err := CallerFrom(r)
	if err != nil {
		return Caller{}, err
	}
	for _, role := range roles {
		if caller.Role == role {
			return caller, nil
		}
	}
	return Caller{}, domain.ErrForbidden
}
