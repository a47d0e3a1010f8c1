package domain

// Identity is the authenticated caller: the requesting user, their
// organization, and whether they hold the administrative scope that bypasses
// owner checks on reads.
type Identity struct {
	OwnerID  string `json:"owner_id"`
	TenantID string `json:"tenant_id"`
	Admin    bool   `json:"admin"`
}

// CanAccess reports whether the identity may act on the given job: read its
// status or trigger its pipeline.
func (id Identity) CanAccess(job *Job) bool {
	if id.Admin {
		return true
	}
	return id.OwnerID == job.OwnerID && id.TenantID == job.TenantID
}
