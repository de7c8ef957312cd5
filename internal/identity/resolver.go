// Package identity maps platform-specific user IDs (e.g., telegram:123456)
// to canonical identities, so one person gets one streak of sessions and
// memories no matter which channel they message from.
package identity

import (
	"sort"
	"sync"

	"github.com/haasonsaas/aide/internal/agent"
)

// Resolver answers "who is channel user X" from a static alias table.
type Resolver struct {
	mu sync.RWMutex

	// canonical maps canonical_id -> linked peers ("channel:peer_id").
	canonical map[string][]string

	// peerIndex maps channel:peer_id -> canonical_id for fast lookup.
	peerIndex map[string]string
}

// NewResolver builds a resolver from an alias table mapping canonical ids
// to their linked peers. Peer entries use the "channel:peer_id" form.
func NewResolver(aliases map[string][]string) *Resolver {
	r := &Resolver{
		canonical: make(map[string][]string, len(aliases)),
		peerIndex: make(map[string]string),
	}
	for canonicalID, peers := range aliases {
		linked := make([]string, len(peers))
		copy(linked, peers)
		sort.Strings(linked)
		r.canonical[canonicalID] = linked
		for _, peer := range peers {
			r.peerIndex[peer] = canonicalID
		}
	}
	return r
}

// Resolve finds the canonical identity linked to a channel/peer combination.
// A peer id that is itself a canonical id resolves to that identity, which
// lets gateway clients authenticate with the canonical id directly.
func (r *Resolver) Resolve(channel, userID string) (agent.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platformID := channel + ":" + userID
	if canonicalID, ok := r.peerIndex[platformID]; ok {
		return agent.Identity{ID: canonicalID, DisplayName: canonicalID}, true
	}
	if _, ok := r.canonical[userID]; ok {
		return agent.Identity{ID: userID, DisplayName: userID}, true
	}
	return agent.Identity{}, false
}

// LinkedPeers returns the peers linked to a canonical id.
func (r *Resolver) LinkedPeers(canonicalID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers, ok := r.canonical[canonicalID]
	if !ok {
		return nil
	}
	out := make([]string, len(peers))
	copy(out, peers)
	return out
}

// Link adds a peer to a canonical identity at runtime.
func (r *Resolver) Link(canonicalID, channel, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	platformID := channel + ":" + peerID
	if existing, ok := r.peerIndex[platformID]; ok && existing == canonicalID {
		return
	}
	r.peerIndex[platformID] = canonicalID
	r.canonical[canonicalID] = append(r.canonical[canonicalID], platformID)
	sort.Strings(r.canonical[canonicalID])
}

var _ agent.IdentityResolver = (*Resolver)(nil)
