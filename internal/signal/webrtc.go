package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// handleDescription relays an SDP offer or answer to its target. The
// server never inspects the SDP; peers negotiate media directly.
func (ctl *RoomController) handleDescription(p *peer, msgType string, data []byte) {
	var in struct {
		Target domain.Identity `json:"target"`
		SDP    string          `json:"sdp"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Str("msg_type", msgType).Msg("bad sdp payload")
		return
	}
	if in.Target == "" {
		return
	}
	ctl.unicast(p, in.Target, msgType, struct {
		Type string          `json:"type"`
		From domain.Identity `json:"from"`
		SDP  string          `json:"sdp"`
	}{msgType, p.id, in.SDP})
}

// handleCandidate relays an ICE candidate. A candidate without a target
// goes to the host — audio-only viewers only ever negotiate with the host
// and omit the field.
func (ctl *RoomController) handleCandidate(p *peer, data []byte) {
	var in struct {
		Target    domain.Identity `json:"target"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Msg("bad candidate payload")
		return
	}
	target := in.Target
	if target == "" {
		target = p.hostID
	}
	ctl.unicast(p, target, TypeICECandidate, struct {
		Type      string          `json:"type"`
		From      domain.Identity `json:"from"`
		Candidate json.RawMessage `json:"candidate"`
	}{TypeICECandidate, p.id, in.Candidate})
}

// handleRequestOffer asks a specific presenter for an offer, or the whole
// room when no target is named so that any presenter may respond.
func (ctl *RoomController) handleRequestOffer(p *peer, data []byte) {
	var in struct {
		Target domain.Identity `json:"target"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Msg("bad request_offer payload")
		return
	}
	out := struct {
		Type     string          `json:"type"`
		From     domain.Identity `json:"from"`
		Username string          `json:"username"`
	}{TypeRequestOffer, p.id, p.username}

	if in.Target != "" {
		ctl.unicast(p, in.Target, TypeRequestOffer, out)
		return
	}
	ctl.broadcast(p, TypeRequestOffer, out, p.id)
}

// handleViewerAudio routes the audio sub-handshake between a viewer and
// the host. Offers always go to the host; answers and stop notices follow
// the target field and fall back to the host when it is absent.
func (ctl *RoomController) handleViewerAudio(p *peer, msgType string, data []byte) {
	var in struct {
		Target domain.Identity `json:"target"`
		SDP    string          `json:"sdp"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user_id", string(p.id)).Str("msg_type", msgType).Msg("bad viewer audio payload")
		return
	}

	target := in.Target
	if msgType == TypeViewerAudioOffer || target == "" {
		target = p.hostID
	}
	ctl.unicast(p, target, msgType, struct {
		Type     string          `json:"type"`
		From     domain.Identity `json:"from"`
		Username string          `json:"username"`
		SDP      string          `json:"sdp,omitempty"`
	}{msgType, p.id, p.username, in.SDP})
}
