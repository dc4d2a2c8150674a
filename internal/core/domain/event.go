package domain

// SnapshotUpdatedEvent is published after every completed refresh cycle and
// after every setter that changed the snapshot.
type SnapshotUpdatedEvent struct {
	Snapshot   Snapshot
	Identities Identities
}

// IdentitiesChangedEvent is published when the set of sub-devices changes.
type IdentitiesChangedEvent struct {
	Identities Identities
}

type ConnectionStateEvent struct {
	Connected bool
	Reason    string
}
