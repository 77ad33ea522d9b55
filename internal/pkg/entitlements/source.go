package entitlements

import "context"

// Principal identifies whose entitlements are requested. Token is the
// bearer credential forwarded to remote sources.
type Principal struct {
	CompanyID uint
	Token     string
}

// Snapshot is the raw account state a Summary is built from.
type Snapshot struct {
	Account   Account
	SeatsUsed int
	Records   []Record
}

// Find returns the record for a feature.
func (s *Snapshot) Find(feature string) (Record, bool) {
	for _, r := range s.Records {
		if r.Feature == feature {
			return r, true
		}
	}
	return Record{}, false
}

// Source loads entitlement snapshots for a company.
type Source interface {
	Load(ctx context.Context, p Principal) (*Snapshot, error)
}
