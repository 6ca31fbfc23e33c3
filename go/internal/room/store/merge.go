package store

import (
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// The merge functions never modify their input. They return the input
// unchanged (and false) when the change is already present.

func mergeChat(s *models.RoomSnapshot, msg models.ChatMessage) (*models.RoomSnapshot, bool) {
	for _, m := range s.Chat {
		if m.ID == msg.ID {
			return s, false
		}
	}

	next := *s
	next.Chat = make([]models.ChatMessage, 0, len(s.Chat)+1)
	next.Chat = append(next.Chat, msg)
	next.Chat = append(next.Chat, s.Chat...)
	return &next, true
}

func mergeEvidence(s *models.RoomSnapshot, factionID string, ev models.Evidence) (*models.RoomSnapshot, bool) {
	if !s.HasFaction(factionID) {
		log.Warn().Str("faction_id", factionID).Str("evidence_id", ev.ID.String()).Msg("evidence for unknown faction dropped")
		return s, false
	}

	idx := -1
	for i, g := range s.Evidence {
		if g.FactionID != factionID {
			continue
		}
		for _, existing := range g.Submissions {
			if existing.ID == ev.ID {
				return s, false
			}
		}
		idx = i
		break
	}

	next := *s
	next.Evidence = append([]models.EvidenceGroup(nil), s.Evidence...)
	if idx < 0 {
		next.Evidence = append(next.Evidence, models.EvidenceGroup{
			FactionID:   factionID,
			Submissions: []models.Evidence{ev},
		})
	} else {
		group := s.Evidence[idx]
		subs := make([]models.Evidence, 0, len(group.Submissions)+1)
		subs = append(subs, ev)
		subs = append(subs, group.Submissions...)
		next.Evidence[idx] = models.EvidenceGroup{FactionID: factionID, Submissions: subs}
	}

	next.Factions = append([]models.Faction(nil), s.Factions...)
	for i := range next.Factions {
		if next.Factions[i].ID == factionID {
			next.Factions[i].EvidenceCount++
		}
	}
	return &next, true
}

func mergeParticipant(s *models.RoomSnapshot, p models.Participant) (*models.RoomSnapshot, bool) {
	if p.FactionID != "" && !s.HasFaction(p.FactionID) {
		log.Warn().Str("participant_id", p.ID).Str("faction_id", p.FactionID).Msg("participant with unknown faction dropped")
		return s, false
	}

	next := *s
	for i, existing := range s.Participants {
		if existing.ID != p.ID {
			continue
		}
		if existing == p {
			return s, false
		}
		next.Participants = append([]models.Participant(nil), s.Participants...)
		next.Participants[i] = p
		return &next, true
	}

	next.Participants = make([]models.Participant, 0, len(s.Participants)+1)
	next.Participants = append(next.Participants, p)
	next.Participants = append(next.Participants, s.Participants...)
	return &next, true
}

func replaceBetting(s *models.RoomSnapshot, b models.Betting) (*models.RoomSnapshot, bool) {
	for _, pool := range b.Factions {
		if !s.HasFaction(pool.FactionID) {
			log.Warn().Str("faction_id", pool.FactionID).Msg("betting summary with unknown faction dropped")
			return s, false
		}
	}

	next := *s
	next.Betting = models.Betting{
		TotalPool: b.TotalPool,
		Factions:  append([]models.FactionPool(nil), b.Factions...),
		UpdatedAt: b.UpdatedAt,
	}
	return &next, true
}

// overlayBet adds a pending stake on top of the betting summary.
func overlayBet(s *models.RoomSnapshot, bet models.Bet) *models.RoomSnapshot {
	next := *s
	next.Betting.TotalPool += bet.Points
	next.Betting.Factions = append([]models.FactionPool(nil), s.Betting.Factions...)

	found := false
	for i := range next.Betting.Factions {
		if next.Betting.Factions[i].FactionID == bet.FactionID {
			next.Betting.Factions[i].Points += bet.Points
			found = true
		}
	}
	if !found {
		next.Betting.Factions = append(next.Betting.Factions, models.FactionPool{
			FactionID: bet.FactionID,
			Points:    bet.Points,
		})
	}

	if next.Betting.TotalPool > 0 {
		for i := range next.Betting.Factions {
			next.Betting.Factions[i].Ratio = float64(next.Betting.Factions[i].Points) / float64(next.Betting.TotalPool)
		}
	}
	return &next
}
