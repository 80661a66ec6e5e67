package clublog

// DXCCStats holds the number of distinct DXCC entities per award category.
//
// The counts always satisfy Verified <= Confirmed <= Worked.
type DXCCStats struct {
	Worked    int `json:"worked"`
	Confirmed int `json:"confirmed"`
	Verified  int `json:"verified"`
}

// ComputeDXCCStats reduces a DXCC matrix to distinct entity counts.
//
// Every entity with at least one band entry counts as worked. An entity is
// confirmed when any of its bands has status 1 or 3, and verified when any
// band has status 3. Classification is by union over bands, so an entity
// confirmed on one band and merely worked on another still counts once in
// each category it qualifies for.
func ComputeDXCCStats(m DXCCMatrix) DXCCStats {
	worked := make(map[string]struct{}, len(m))
	confirmed := make(map[string]struct{})
	verified := make(map[string]struct{})

	for entity, bands := range m {
		for _, status := range bands {
			worked[entity] = struct{}{}
			if status == StatusConfirmed || status == StatusVerified {
				confirmed[entity] = struct{}{}
			}
			if status == StatusVerified {
				verified[entity] = struct{}{}
			}
		}
	}

	return DXCCStats{
		Worked:    len(worked),
		Confirmed: len(confirmed),
		Verified:  len(verified),
	}
}
