package app

import "fmt"

// MembershipSequence is the counter name membership numbers are drawn from.
const MembershipSequence = "membership"

// FormatMembershipID renders a membership number, e.g. GART-000001.
func FormatMembershipID(seq int64) string {
	return fmt.Sprintf("GART-%06d", seq)
}
