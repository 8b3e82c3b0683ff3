package model

import "regexp"

var reOwnerID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Principal is the authenticated caller as reported by the OMERO side.
type Principal struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Admin  bool     `json:"admin"`
	Groups []string `json:"groups"`
}

// InGroup compares group names case sensitively, as OMERO does.
func (p *Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// OwnerDir is the per-owner directory name below the destination root. The
// id must pass ValidOwnerID, so distinct owners never share a directory.
func OwnerDir(ownerID string) string {
	if ownerID == "" {
		return "user_unknown"
	}
	return "user_" + ownerID
}

// ValidOwnerID accepts ids made of letters, digits, '-', '_' and '.', at most
// 128 bytes long.
func ValidOwnerID(ownerID string) bool {
	return reOwnerID.MatchString(ownerID)
}
