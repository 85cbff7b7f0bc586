package quadtree

// Option configures optional tree behaviours.
type Option func(*options)

type options struct {
	pathEntries                bool
	triggerPointRedistribution bool
}

// WithPathEntries makes Insert record the payload at every node visited on
// the way down, not only at the node where the descent stops. Entries
// recorded at inner nodes are never returned by Query but show up in
// Entries and Len.
func WithPathEntries() Option {
	return func(o *options) {
		o.pathEntries = true
	}
}

// WithTriggerPointRedistribution makes a split route every stored entry by
// the point of the insertion that triggered the split instead of each
// entry's own point. Entries that fit no child are dropped.
func WithTriggerPointRedistribution() Option {
	return func(o *options) {
		o.triggerPointRedistribution = true
	}
}

// Legacy enables both WithPathEntries and WithTriggerPointRedistribution.
func Legacy() Option {
	return func(o *options) {
		o.pathEntries = true
		o.triggerPointRedistribution = true
	}
}
