package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FirstMemberSequence is the sequence number given to the first member of
// every calendar year.
const FirstMemberSequence = 1001

type Badge string

const (
	BadgeGold   Badge = "gold"
	BadgeSilver Badge = "silver"
)

// FoundingMember is the permanent record of a lifetime purchase. At most one
// exists per user and it is never mutated after insert.
type FoundingMember struct {
	UserID        string
	Tier          Tier
	MemberNumber  string
	PricePaid     int64
	Currency      string
	Badge         Badge
	PurchasedAt   time.Time
	DisplayOnWall bool
}

// FormatMemberNumber renders a member number as "{year}-{sequence}".
func FormatMemberNumber(year int, seq int64) string {
	return fmt.Sprintf("%d-%d", year, seq)
}

// ParseMemberNumber splits a member number into its year and sequence.
func ParseMemberNumber(s string) (year int, seq int64, err error) {
	y, n, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("member number %q: missing separator", s)
	}
	if year, err = strconv.Atoi(y); err != nil {
		return 0, 0, fmt.Errorf("member number %q: bad year: %w", s, err)
	}
	if seq, err = strconv.ParseInt(n, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("member number %q: bad sequence: %w", s, err)
	}
	return year, seq, nil
}

// MemberNumberPrefix is the prefix shared by every member number of year.
func MemberNumberPrefix(year int) string {
	return strconv.Itoa(year) + "-"
}
