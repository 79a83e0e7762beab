package impact

// Accounts seeded with the welcome bonus start at 50 points before
// any project support, so both shapes count as fresh.
const welcomeBonusPoints = 50

// IsBonusCandidate reports whether an account still looks freshly
// created: no projects supported and either zero points or exactly the
// welcome-bonus seed. Any supported project disqualifies the account
// regardless of its point balance.
func IsBonusCandidate(a *Account) bool {
	if a == nil {
		return false
	}
	if a.ProjectsSupported != 0 {
		return false
	}
	return a.ImpactPoints == 0 || a.ImpactPoints == welcomeBonusPoints
}
