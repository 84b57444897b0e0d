package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var ErrInvalidComposition = errors.New("invalid role composition")
var ErrUnknownRole = errors.New("unknown role")

type RoleID string

const (
	RoleVillager RoleID = "VILLAGER"
	RoleWerewolf RoleID = "WEREWOLF"
	RoleSeer     RoleID = "SEER"
	RoleHunter   RoleID = "HUNTER"
)

type Team string

const (
	TeamVillage    Team = "village"
	TeamWerewolves Team = "werewolves"
)

// NightAction is what a role may do while the room is in PhaseNight.
type NightAction string

const (
	NightActionNone   NightAction = ""
	NightActionLethal NightAction = "lethal" // group vote on one victim
	NightActionReveal NightAction = "reveal" // unilateral role inspection
)

type Role struct {
	ID          RoleID      `json:"id"`
	Name        string      `json:"name"`
	Team        Team        `json:"team"`
	ActsAtNight bool        `json:"actsAtNight"`
	NightAction NightAction `json:"-"`
}

// Catalog lists every playable role. The order is the expansion order used by
// Assign, which keeps seeded assignments reproducible.
var Catalog = []Role{
	{ID: RoleWerewolf, Name: "Werewolf", Team: TeamWerewolves, ActsAtNight: true, NightAction: NightActionLethal},
	{ID: RoleSeer, Name: "Seer", Team: TeamVillage, ActsAtNight: true, NightAction: NightActionReveal},
	{ID: RoleHunter, Name: "Hunter", Team: TeamVillage},
	{ID: RoleVillager, Name: "Villager", Team: TeamVillage},
}

func LookupRole(id RoleID) (Role, bool) {
	for _, r := range Catalog {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// Composition is the requested number of players per role.
type Composition map[RoleID]int

func (c Composition) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Validate reports whether the counts in c sum to exactly playerCount.
// It does not look at individual counts; see CheckComposition.
func Validate(c Composition, playerCount int) bool {
	return c.Total() == playerCount
}

// CheckComposition is the stricter check run before a game starts.
func CheckComposition(c Composition, playerCount int) error {
	for id, n := range c {
		if _, ok := LookupRole(id); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRole, id)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative count for %s", ErrInvalidComposition, id)
		}
	}
	if !Validate(c, playerCount) {
		return fmt.Errorf("%w: %d roles for %d players", ErrInvalidComposition, c.Total(), playerCount)
	}
	return nil
}

// DefaultComposition mirrors the classic table setup: one werewolf per four
// players (at least one), a seer, a hunter, villagers for the rest.
func DefaultComposition(playerCount int) Composition {
	wolves := max(1, playerCount/4)
	c := Composition{RoleWerewolf: wolves, RoleSeer: 1, RoleHunter: 1}
	if rest := playerCount - c.Total(); rest > 0 {
		c[RoleVillager] = rest
	}
	return c
}

// Assign deals the roles of c to players in a uniformly random order.
// playerIDs keeps the room's join order; rng makes the deal reproducible.
func Assign(playerIDs []string, c Composition, rng *rand.Rand) (map[string]Role, error) {
	if !Validate(c, len(playerIDs)) {
		return nil, ErrInvalidComposition
	}

	deck := make([]Role, 0, len(playerIDs))
	for _, role := range Catalog {
		for range c[role.ID] {
			deck = append(deck, role)
		}
	}
	// Unknown ids or negative counts leave the deck short.
	if len(deck) != len(playerIDs) {
		return nil, ErrInvalidComposition
	}

	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	out := make(map[string]Role, len(playerIDs))
	for i, id := range playerIDs {
		out[id] = deck[i]
	}
	return out, nil
}
