// Package membership holds the roster transitions of a squad: creation with a single
// owner, joining and leaving. Functions return fresh squads and never mutate their input.
package membership

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/scoring"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NewSquadParams are the caller supplied fields of a new squad
type NewSquadParams struct {
	ID             string
	OwnerID        string
	Name           string
	Slug           string
	Description    string
	Image          string
	ImageStorageID string
	Open           bool
}

// NewSquad builds an active squad whose only member is the owner.
func NewSquad(p NewSquadParams, now time.Time) (domain.Squad, error) {
	if p.ID == "" || p.OwnerID == "" {
		return domain.Squad{}, fmt.Errorf("%w: id and owner are required", domain.ErrInvalidSquad)
	}
	if strings.TrimSpace(p.Name) == "" {
		return domain.Squad{}, fmt.Errorf("%w: name is required", domain.ErrInvalidSquad)
	}
	if !ValidSlug(p.Slug) {
		return domain.Squad{}, fmt.Errorf("%w: slug %q", domain.ErrInvalidSquad, p.Slug)
	}

	image := p.Image
	storageID := p.ImageStorageID
	if image == "" {
		image = domain.DefaultSquadImage
		storageID = ""
	}

	now = now.UTC()
	var zero domain.Stats
	score := scoring.ComputeScore(zero)

	return domain.Squad{
		ID:             p.ID,
		Name:           strings.TrimSpace(p.Name),
		Slug:           p.Slug,
		Description:    p.Description,
		Image:          image,
		ImageStorageID: storageID,
		Open:           p.Open,
		Active:         true,
		OwnerID:        p.OwnerID,
		Score:          score,
		Rank:           scoring.ResolveRank(score),
		Stats:          zero,
		StatsByLeague:  domain.LeagueStats{},
		MonthlyStats:   domain.MonthlyStats{},
		Members: []domain.Member{
			{UserID: p.OwnerID, Role: domain.RoleOwner, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddMember appends userID to the roster as a MEMBER with zeroed stats.
func AddMember(squad domain.Squad, userID string, now time.Time) (domain.Squad, error) {
	if userID == "" {
		return domain.Squad{}, domain.ErrMissingIdentity
	}
	if _, ok := squad.Member(userID); ok {
		return domain.Squad{}, fmt.Errorf("%w: user %s in squad %s", domain.ErrAlreadyInSquad, userID, squad.ID)
	}

	next := squad.Clone()
	next.Members = append(next.Members, domain.Member{
		UserID:   userID,
		Role:     domain.RoleMember,
		JoinedAt: now.UTC(),
	})
	next.UpdatedAt = now.UTC()
	return next, nil
}

// RemoveMember drops userID from the roster. Squad stats keep the departed member's
// contribution. When the owner leaves, the earliest-joined remaining member becomes
// owner; when nobody remains the squad is deactivated.
func RemoveMember(squad domain.Squad, userID string, now time.Time) (domain.Squad, error) {
	idx := -1
	for i, m := range squad.Members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Squad{}, fmt.Errorf("%w: user %s in squad %s", domain.ErrNotAMember, userID, squad.ID)
	}

	next := squad.Clone()
	departed := next.Members[idx]
	next.Members = append(next.Members[:idx], next.Members[idx+1:]...)
	next.UpdatedAt = now.UTC()

	if departed.Role != domain.RoleOwner && departed.UserID != squad.OwnerID {
		return next, nil
	}

	if len(next.Members) == 0 {
		next.Active = false
		return next, nil
	}

	heir := earliestJoined(next.Members)
	next.Members[heir].Role = domain.RoleOwner
	next.OwnerID = next.Members[heir].UserID
	return next, nil
}

// ValidSlug reports whether slug is lowercase alphanumeric words joined by dashes.
func ValidSlug(slug string) bool {
	return len(slug) <= 64 && slugPattern.MatchString(slug)
}

func earliestJoined(members []domain.Member) int {
	best := 0
	for i := 1; i < len(members); i++ {
		if members[i].JoinedAt.Before(members[best].JoinedAt) {
			best = i
		}
	}
	return best
}
