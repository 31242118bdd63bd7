package db

import (
	"github.com/996BC/btccrawler/p2p/peer"
)

var (
	// badger keys, the address is in "ip:port" form
	peerPrefix    = []byte("p") // peerPrefix + address -> json record
	sessionPrefix = []byte("s") // sessionPrefix + session id -> json summary
)

// p..
func getPeerKey(addr peer.Address) []byte {
	return append(append([]byte{}, peerPrefix...), addr.String()...)
}

// s..
func getSessionKey(id string) []byte {
	return append(append([]byte{}, sessionPrefix...), id...)
}

// redis keys, shared with the other tools reading the crawl results
const (
	redisPeerPrefix    = "btc:peer:"    // hash per address
	redisSessionPrefix = "btc:session:" // hash per crawl session

	redisAllPeers    = "btc:peers:all"
	redisUncontacted = "btc:peers:uncontacted"
	redisContacted   = "btc:peers:contacted"
	redisSuccessful  = "btc:peers:successful"
	redisGeolocated  = "btc:peers:geolocated"
)

func getRedisPeerKey(addr string) string {
	return redisPeerPrefix + addr
}

func getRedisSessionKey(id string) string {
	return redisSessionPrefix + id
}

// merge returns update with the history kept from old
func merge(old, update *peer.Record) *peer.Record {
	r := update.Clone()
	if old == nil {
		return r
	}
	if !old.FirstSeenAt.IsZero() && (r.FirstSeenAt.IsZero() || old.FirstSeenAt.Before(r.FirstSeenAt)) {
		r.FirstSeenAt = old.FirstSeenAt
	}
	if old.LastSeenAt.After(r.LastSeenAt) {
		r.LastSeenAt = old.LastSeenAt
	}
	if r.Location == nil && old.Location != nil {
		loc := *old.Location
		r.Location = &loc
	}
	if r.Source == "" {
		r.Source = old.Source
	}
	return r
}
