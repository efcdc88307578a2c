// Package events defines the change notifications emitted after every
// committed ledger mutation. Passive views subscribe and refresh the
// named collection instead of polling the store.
package events

import (
	"encoding/json"
	"time"
)

// Collection names the ledgers a mutation can touch.
type Collection string

const (
	CollectionOrders   Collection = "orders"
	CollectionSales    Collection = "sales"
	CollectionStock    Collection = "stock"
	CollectionReturns  Collection = "returns"
	CollectionBalances Collection = "balances"
)

// SubjectPrefix is the JetStream subject root; one subject per collection.
const SubjectPrefix = "storefront.changed."

// WildcardSubject matches the change notifications of every collection.
const WildcardSubject = SubjectPrefix + "*"

// CollectionChangedEvent carries the ids of the records a committed
// operation touched. It is published after commit, never before.
type CollectionChangedEvent struct {
	Collection Collection `json:"collection"`
	IDs        []string   `json:"ids"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func (e CollectionChangedEvent) Subject() string {
	return SubjectPrefix + string(e.Collection)
}

func (e CollectionChangedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
