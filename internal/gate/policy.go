package gate

// Family identifies a group of guards sharing requirements and failure policy.
type Family string

const (
	// FamilyLogin only requires a valid provider session.
	FamilyLogin Family = "login"
	// FamilyRole requires one of a set of roles.
	FamilyRole Family = "role"
	// FamilyFireStation requires a fire station tenant.
	FamilyFireStation Family = "fire_station"
	// FamilyWorkshop requires a workshop tenant.
	FamilyWorkshop Family = "workshop"
)

// FailureKind classifies why a request was rejected.
type FailureKind string

const (
	Unauthenticated  FailureKind = "unauthenticated"
	ProfileNotFound  FailureKind = "profile_not_found"
	ProfileInactive  FailureKind = "profile_inactive"
	RoleMismatch     FailureKind = "role_mismatch"
	NoTenantAssigned FailureKind = "no_tenant_assigned"
	ProviderError    FailureKind = "provider_error"
	StorageError     FailureKind = "storage_error"
)

// Target is a symbolic redirect destination resolved against Config paths.
type Target string

const (
	TargetLogin        Target = "login"
	TargetUnauthorized Target = "unauthorized"
)

// Outcome is what a rejection does to the session and where it sends the user.
type Outcome struct {
	ClearSession bool
	Redirect     Target
}

// Policy maps each family and failure kind to an outcome.
type Policy map[Family]map[FailureKind]Outcome

// failClosed applies to combinations missing from a policy.
var failClosed = Outcome{ClearSession: true, Redirect: TargetLogin}

// DefaultPolicy reproduces the historical behaviour of each guard family:
// provider rejections wipe the session and send the user to login, missing
// profiles go to login without clearing, and role or tenant problems go to
// the unauthorized page leaving the session intact. A deactivated profile is
// signed out the same way a refused login is.
func DefaultPolicy() Policy {
	shared := map[FailureKind]Outcome{
		Unauthenticated:  {ClearSession: true, Redirect: TargetLogin},
		ProviderError:    {ClearSession: true, Redirect: TargetLogin},
		ProfileNotFound:  {ClearSession: false, Redirect: TargetLogin},
		ProfileInactive:  {ClearSession: true, Redirect: TargetLogin},
		RoleMismatch:     {ClearSession: false, Redirect: TargetUnauthorized},
		NoTenantAssigned: {ClearSession: false, Redirect: TargetUnauthorized},
		StorageError:     {ClearSession: false, Redirect: TargetUnauthorized},
	}
	policy := Policy{
		FamilyLogin:       clone(shared),
		FamilyRole:        clone(shared),
		FamilyFireStation: clone(shared),
		FamilyWorkshop:    clone(shared),
	}
	policy[FamilyRole][StorageError] = Outcome{ClearSession: false, Redirect: TargetLogin}
	return policy
}

// With returns a copy of p with one entry replaced.
func (p Policy) With(family Family, kind FailureKind, outcome Outcome) Policy {
	out := make(Policy, len(p)+1)
	for f, kinds := range p {
		out[f] = clone(kinds)
	}
	if out[family] == nil {
		out[family] = make(map[FailureKind]Outcome)
	}
	out[family][kind] = outcome
	return out
}

// Outcome looks up the configured outcome, failing closed when absent.
func (p Policy) Outcome(family Family, kind FailureKind) Outcome {
	if kinds, ok := p[family]; ok {
		if outcome, ok := kinds[kind]; ok {
			return outcome
		}
	}
	return failClosed
}

func clone(in map[FailureKind]Outcome) map[FailureKind]Outcome {
	out := make(map[FailureKind]Outcome, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
