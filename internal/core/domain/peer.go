package domain

import "time"

// Peer is a reachable node of the sync mesh as seen by peer discovery.
type Peer struct {
	Name     string    `json:"name"`
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"last_seen"`
}
