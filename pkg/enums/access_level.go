package enums

// AccessLevel describes the tier a requester is evaluated at.
type AccessLevel string

const (
	AccessLevelBasic   AccessLevel = "basic"
	AccessLevelPremium AccessLevel = "premium"
)

// String implements fmt.Stringer.
func (a AccessLevel) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a AccessLevel) IsValid() bool {
	return a == AccessLevelBasic || a == AccessLevelPremium
}
